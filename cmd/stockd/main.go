package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"stock-lookup/internal/container"
	"stock-lookup/internal/lookup"
	"stock-lookup/internal/store"
)

func main() {
	cfgPath := flag.String("config", "configs/stockd.yaml", "配置文件路径")
	get := flag.String("get", "", "查询单个 symbol（逗号分隔可查多个）")
	report := flag.Bool("report", false, "输出全部记录报表")
	low := flag.Int64("low", -1, "列出成交量低于该值的 symbol；-1 使用配置 report.lowVolumeThreshold")
	remove := flag.String("remove", "", "删除 symbol（逗号分隔）并写回数据源文件")
	serve := flag.Bool("serve", false, "常驻运行：监听数据源、推送源并暴露 metrics")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	if *serve {
		runServer(c)
		return
	}

	ctx := context.Background()
	if _, err := c.Load(ctx); err != nil {
		log.Fatalf("%v", err)
	}
	svc := c.Service()

	exit := 0
	if *remove != "" {
		if !removeSymbols(c, *remove) {
			exit = 1
		}
	}
	if *get != "" {
		for _, sym := range strings.Split(*get, ",") {
			if !printLookup(svc, sym) {
				exit = 1
			}
		}
	}
	if *report {
		if err := svc.Report(os.Stdout); err != nil {
			log.Fatalf("report: %v", err)
		}
	}
	if *low >= 0 || (*get == "" && !*report && *remove == "") {
		threshold := *low
		if threshold < 0 {
			threshold = c.Config().Report.LowVolumeThreshold
		}
		fmt.Printf("Low volume (< %d): %s\n", threshold, strings.Join(svc.LowVolume(threshold), ", "))
	}
	// 关闭 watcher、同步日志，并在配置了 snapshot.path 时写出快照
	if err := c.Stop(); err != nil {
		log.Printf("停止时出错: %v", err)
		exit = 1
	}
	os.Exit(exit)
}

// removeSymbols 删除给定 symbol 并写回数据源；任一 symbol 不存在或非法时返回 false。
func removeSymbols(c *container.Container, list string) bool {
	svc := c.Service()
	ok := true
	for _, sym := range strings.Split(list, ",") {
		removed, err := svc.Remove(sym)
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "%s: %v\n", sym, err)
			ok = false
		case !removed:
			fmt.Printf("no data for symbol %s\n", store.NormalizeSymbol(sym))
			ok = false
		default:
			fmt.Printf("removed %s\n", store.NormalizeSymbol(sym))
		}
	}
	if err := svc.Save(c.Config().Source.Path); err != nil {
		fmt.Fprintf(os.Stderr, "save: %v\n", err)
		return false
	}
	return ok
}

// printLookup 打印查询结果；未命中或 symbol 非法时返回 false。
func printLookup(svc *lookup.Service, symbol string) bool {
	res, err := svc.Lookup(symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", symbol, err)
		return false
	}
	if !res.Found {
		fmt.Println(res.Message)
		return false
	}
	r := res.Record
	fmt.Printf("%s price=%s volume=%d at=%s\n", r.Symbol, r.Price.String(), r.Volume, r.Timestamp.Format(time.RFC3339))
	return true
}

func runServer(c *container.Container) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	// 非 systemd 环境下 SdNotify 返回 (false, nil)
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("sd_notify ready: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	if err := c.Stop(); err != nil {
		log.Printf("停止时出错: %v", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hydrowave/internal/commands"
	"hydrowave/internal/config"
	"hydrowave/internal/db"
	"hydrowave/internal/devices"
	"hydrowave/internal/engine"
	"hydrowave/internal/internet_bridge"
	"hydrowave/internal/mqtt"
	"hydrowave/internal/redis"
	"hydrowave/internal/scheduler"
	"hydrowave/internal/taskqueue"
	"hydrowave/internal/utils"
	"hydrowave/internal/web"

	"github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func main() {
	utils.InitLogging()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbConn, err := db.NewDB(cfg.DBURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dbConn.Close()

	redisClient := redis.NewRedisClient(cfg.RedisAddr)

	queue := buildCommandQueue(cfg, dbConn)
	tracker := devices.NewTracker(dbConn)

	eng := engine.NewEngine(dbConn, queue, tracker, redisClient)

	taskqueue.SetGlobalInstances(eng)
	go taskqueue.StartWorkers(cfg.RedisAddr)
	eng.SetDispatcher(taskqueue.EnqueueEvaluation)

	sched := scheduler.NewScheduler(dbConn)
	eng.SetScheduler(sched)
	sched.Start()
	if err := sched.LoadRules(context.Background()); err != nil {
		log.Printf("Failed to load time-triggered rules: %v", err)
	}

	// MQTT telemetry ingest is optional; HTTP reports always work.
	if cfg.MQTTBroker != "" {
		mqttClient, err := mqtt.NewMQTTClient(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			log.Fatalf("Failed to connect to MQTT: %v", err)
		}
		eng.StartTelemetrySubscription(mqttClient)
	}

	// Sweep for commands stuck in sent and raise alerts on them.
	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	defer cancelMonitor()
	monitor := commands.NewMonitor(queue, dbConn, time.Duration(cfg.StaleAfterSecs)*time.Second)
	go monitor.Run(monitorCtx, time.Minute)

	// Pass engine to web server so it can notify about rule changes
	webServer := web.NewWebServer(dbConn, redisClient, cfg.JWTSecret, cfg.DeviceKey, eng, queue, tracker)
	go webServer.Start(":" + cfg.Port)

	if cfg.MDNSName != "" {
		go startMDNSServer(cfg.MDNSName)
	}

	if cfg.RemoteWSURL != "" {
		go internet_bridge.Start(internet_bridge.Config{
			PublicWS: cfg.RemoteWSURL,
			LocalURL: "http://127.0.0.1:" + cfg.Port,
			AgentID:  cfg.AgentID,
		})
	} else {
		log.Println("Remote access bridge is disabled")
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	sched.Stop()
	taskqueue.StopWorkers()
	log.Println("Shutdown complete")
}

// buildCommandQueue picks the queue backend. Both backends run a
// janitor: the in-memory queue evicts terminal commands after minutes,
// the persistent queue deletes finished history past its retention.
func buildCommandQueue(cfg *config.Config, dbConn *db.DB) commands.Queue {
	if cfg.CommandBackend == "memory" {
		queue := commands.NewMemoryQueue(commands.DefaultRetention)
		go queue.Run(context.Background(), time.Minute)
		return queue
	}
	queue := commands.NewStoreQueue(dbConn)
	go queue.Run(context.Background(), time.Hour)
	return queue
}

func startMDNSServer(localName string) {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		log.Println("Failed to resolve UDP4 address for mDNS:", err)
		return
	}

	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		log.Println("Failed to resolve UDP6 address for mDNS:", err)
		return
	}

	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		log.Println("Failed to listen on UDP4 for mDNS:", err)
		return
	}

	l6, err := net.ListenUDP("udp6", addr6)
	if err != nil {
		log.Println("Failed to listen on UDP6 for mDNS:", err)
		return
	}

	_, err = mdns.Server(ipv4.NewPacketConn(l4), ipv6.NewPacketConn(l6), &mdns.Config{
		LocalNames: []string{localName},
	})
	if err != nil {
		log.Println("Failed to start mDNS server:", err)
	}
}

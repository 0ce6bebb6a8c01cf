package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-smartwake/internal/auth"
	"wisefido-smartwake/internal/common/database"
	"wisefido-smartwake/internal/common/logger"
	mqttcommon "wisefido-smartwake/internal/common/mqtt"
	rediscommon "wisefido-smartwake/internal/common/redis"
	"wisefido-smartwake/internal/config"
	"wisefido-smartwake/internal/consumer"
	httpapi "wisefido-smartwake/internal/http"
	"wisefido-smartwake/internal/metrics"
	"wisefido-smartwake/internal/repository"
	"wisefido-smartwake/internal/service"
	"wisefido-smartwake/internal/store"
	"wisefido-smartwake/internal/trigger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-smartwake")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	// 5. Redis（状态缓存、记录流、输入流）
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		log.Fatal("Failed to connect redis", zap.Error(err))
	}
	defer rediscommon.Close(redisClient)

	// 6. PostgreSQL（可选：设备授权、闹钟设置、记录落库）
	var db *sql.DB
	if cfg.SmartWake.Output.PersistRecords {
		if d, err := database.NewPostgresDB(ctx, &cfg.Database); err == nil {
			db = d
			defer database.Close(db)
		} else {
			log.Warn("DB connection failed, running without persistence", zap.Error(err))
		}
	}

	// 7. 触发服务
	trig := trigger.New(ctx, log.Named("trigger"), trigger.WithMaxSleepCap(cfg.SmartWake.MaxSleepCap))

	// 8. 服务
	defaults := repository.SettingsDefaults{
		WindowLookback: time.Duration(cfg.SmartWake.Defaults.WindowMinutes) * time.Minute,
		SmartEnabled:   cfg.SmartWake.Defaults.SmartEnabled,
		Location:       cfg.DefaultLocation(),
	}
	opts := []service.Option{
		service.WithMetrics(m),
		service.WithPublisher(store.NewRecordPublisher(redisClient, cfg.SmartWake.Output.RecordStream, log)),
		service.WithStatusCache(store.NewStatusCache(
			store.NewRedisKVStore(redisClient),
			cfg.SmartWake.Output.StatusKeyPrefix,
			cfg.SmartWake.Output.StatusTTL,
			log,
		)),
	}

	var gate auth.Gate = auth.StaticGate(true)
	var deviceRepo *repository.DeviceRepository
	if db != nil {
		deviceRepo = repository.NewDeviceRepository(db, log)
		gate = auth.NewDeviceGate(deviceRepo, log)
		opts = append(opts,
			service.WithRecordStore(repository.NewAlarmRecordRepository(db, log)),
			service.WithSettingsStore(repository.NewWakeSettingsRepository(db, log)),
		)
	} else {
		log.Warn("Device authorization disabled: no database")
	}

	svc := service.NewSmartWakeService(
		service.Options{
			TenantID:      cfg.SmartWake.TenantID,
			Defaults:      defaults,
			EmitCancelled: cfg.SmartWake.EmitCancelled,
		},
		trig,
		gate,
		log,
		opts...,
	)

	checks := []httpapi.HealthCheck{{
		Name:  "redis",
		Check: func(ctx context.Context) error { return rediscommon.Ping(ctx, redisClient) },
	}}
	if db != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "postgres", Check: db.PingContext})
	}

	errChan := make(chan error, 3)

	// 9. 输入源
	if cfg.SmartWake.Source.StreamEnabled {
		streamConsumer := consumer.NewStreamConsumer(consumer.StreamConfig{
			Stream:        cfg.SmartWake.Source.Stream,
			ConsumerGroup: cfg.SmartWake.Source.ConsumerGroup,
			ConsumerName:  cfg.SmartWake.Source.ConsumerName,
			BatchSize:     cfg.SmartWake.Source.BatchSize,
		}, redisClient, svc, log.Named("stream"))
		go func() {
			if err := streamConsumer.Start(ctx); err != nil {
				errChan <- fmt.Errorf("stream consumer: %w", err)
			}
		}()
	}

	if cfg.SmartWake.Source.MQTTEnabled {
		if deviceRepo == nil {
			log.Fatal("MQTT source requires database for device lookup")
		}
		mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, log)
		if err != nil {
			log.Fatal("Failed to connect MQTT broker", zap.Error(err))
		}
		defer mqttClient.Disconnect()
		checks = append(checks, httpapi.HealthCheck{
			Name:  "mqtt",
			Check: func(context.Context) error {
				if !mqttClient.IsConnected() {
					return errors.New("not connected")
				}
				return nil
			},
		})

		mqttConsumer := consumer.NewMQTTConsumer(
			cfg.SmartWake.Source.MQTTTopic,
			cfg.MQTT.QoS,
			mqttClient,
			deviceRepo,
			svc,
			log.Named("mqtt"),
		)
		defer mqttConsumer.Stop(context.Background())
		go func() {
			if err := mqttConsumer.Start(ctx); err != nil {
				errChan <- fmt.Errorf("mqtt consumer: %w", err)
			}
		}()
	}

	// 10. HTTP
	router := httpapi.NewRouter(log)
	router.RegisterSmartWakeRoutes(httpapi.NewSmartWakeHandler(svc, defaults, log))
	router.RegisterOpsRoutes(registry, checks...)

	server := &http.Server{
		Addr:              cfg.SmartWake.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 11. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		log.Error("Service error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown HTTP server", zap.Error(err))
	}
	svc.Shutdown(shutdownCtx)
	cancel()

	log.Info("Smart wake service stopped")
}

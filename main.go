package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"FaceValServer/adhoc"
	"FaceValServer/cache"
	"FaceValServer/detect"
	"FaceValServer/engine"
	"FaceValServer/logger"
	"FaceValServer/monitor"
	"FaceValServer/pool"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type configStruct struct {
	HTTPPort      int    `yaml:"HTTPPort"`
	MonitorPort   int    `yaml:"MonitorPort"`
	ModelPath     string `yaml:"ModelPath"`
	ModelDir      string `yaml:"ModelDir"`
	OrtLibPath    string `yaml:"OrtLibPath"`
	UseRegServer  bool   `yaml:"UseRegServer"`
	RegServerHost string `yaml:"RegServerHost"`
	RegServerPort int    `yaml:"RegServerPort"`

	InputSize                int     `yaml:"InputSize"`
	ConfThreshold            float32 `yaml:"ConfThreshold"`
	SessionTTLMinutes        int     `yaml:"SessionTTLMinutes"`
	SessionMaxAgeMinutes     int     `yaml:"SessionMaxAgeMinutes"`
	ProcessingTimeoutSeconds int     `yaml:"ProcessingTimeoutSeconds"`
	RetryAttempts            int     `yaml:"RetryAttempts"`
	RetryDelayMs             int     `yaml:"RetryDelayMs"`
}

func (c *configStruct) applyDefaults() {
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.MonitorPort == 0 {
		c.MonitorPort = 50053
	}
	if c.ModelDir == "" {
		c.ModelDir = "models"
	}
	if c.InputSize == 0 {
		c.InputSize = detect.InputWidth
	}
	if c.ConfThreshold == 0 {
		c.ConfThreshold = detect.ConfThreshold
	}
	if c.SessionTTLMinutes == 0 {
		c.SessionTTLMinutes = 60
	}
	if c.SessionMaxAgeMinutes == 0 {
		c.SessionMaxAgeMinutes = 240
	}
	if c.ProcessingTimeoutSeconds == 0 {
		c.ProcessingTimeoutSeconds = 10
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = detect.RetryAttempts
	}
	if c.RetryDelayMs == 0 {
		c.RetryDelayMs = 100
	}
}

// GetOutboundIP resolves the local egress IP by asking the routing
// table; no packets are sent.
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

func main() {
	if err := logger.InitProduction(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	runtime.GOMAXPROCS(runtime.NumCPU())

	configData, err := os.ReadFile("config.yaml")
	if err != nil {
		logger.Log().Fatal("failed to read config file", zap.Error(err))
	}
	config := configStruct{}
	if err := yaml.Unmarshal(configData, &config); err != nil {
		logger.Log().Fatal("failed to parse config file", zap.Error(err))
	}
	config.applyDefaults()
	if config.ModelPath == "" {
		logger.Log().Fatal("ModelPath must be set in config.yaml")
	}

	if err := engine.InitEnvironment(config.OrtLibPath); err != nil {
		logger.Log().Fatal("failed to init onnxruntime", zap.Error(err))
	}
	defer engine.DestroyEnvironment()

	factory := func(modelPath string) (engine.Runner, error) {
		return engine.NewSession(modelPath, config.InputSize, config.InputSize, detect.Candidates)
	}
	sessions := cache.New(factory,
		time.Duration(config.SessionTTLMinutes)*time.Minute,
		time.Duration(config.SessionMaxAgeMinutes)*time.Minute)

	buffers := pool.New(pool.DefaultCapacity)
	pipeline := detect.New(buffers)
	pipeline.InputWidth = config.InputSize
	pipeline.InputHeight = config.InputSize
	pipeline.ConfThreshold = config.ConfThreshold
	pipeline.Timeout = time.Duration(config.ProcessingTimeoutSeconds) * time.Second
	pipeline.Attempts = config.RetryAttempts
	pipeline.Backoff = time.Duration(config.RetryDelayMs) * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	sessions.StartSweeper(ctx, cache.DefaultSweepInterval)
	go monitor.StartMon(config.MonitorPort, ctx)

	var wg sync.WaitGroup
	if config.UseRegServer {
		ip, err := GetOutboundIP()
		if err != nil {
			logger.Log().Warn("failed to resolve outbound IP, skipping registration", zap.Error(err))
		} else {
			adhoc.RegServerCfg.SetAddress(config.RegServerHost, config.RegServerPort)
			wg.Add(1)
			go adhoc.SendAliveMessage(ip, config.HTTPPort, config.ModelPath, ctx, &wg)
		}
	}

	app := &appState{
		sessions:  sessions,
		buffers:   buffers,
		pipeline:  pipeline,
		modelPath: config.ModelPath,
		modelDir:  config.ModelDir,
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.HTTPPort),
		Handler:      newRouter(app),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		logger.Log().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log().Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("server shutdown", zap.Error(err))
	}
	cancel()
	wg.Wait()

	sessions.Flush()
	buffers.Clear()
	logger.Log().Info("exited")
}

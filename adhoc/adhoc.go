// Package adhoc reports this validator instance to a central registry
// so a fleet controller can discover live instances. Disabled unless
// configured.
package adhoc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FaceValServer/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const heartbeatSeconds = 5

type RegisterRequest struct {
	Id        string `json:"id"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	Model     string `json:"model"`
	TimeStamp int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Addr string
	Port int
}

func (reg *RegServerConfig) SetAddress(addr string, port int) {
	reg.Addr = addr
	reg.Port = port
}

var RegServerCfg RegServerConfig

// SendAliveMessage posts a heartbeat to the registry every few seconds
// until ctx is cancelled. Request failures are logged, never fatal.
func SendAliveMessage(ip string, port int, model string, ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	addr := fmt.Sprintf("%s:%d", RegServerCfg.Addr, RegServerCfg.Port)
	url := fmt.Sprintf("http://%s/api/register", addr)

	ticker := time.NewTicker(heartbeatSeconds * time.Second)
	defer ticker.Stop()
	client := resty.New().SetTimeout(heartbeatSeconds * time.Second)
	id := uuid.NewString()

	safeDoRequest := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error("heartbeat panic recovered", zap.Any("panic", r))
			}
		}()
		var respBody RegisterResponse
		reqBody := RegisterRequest{
			Id:        id,
			IP:        ip,
			Port:      port,
			Model:     model,
			TimeStamp: time.Now().Unix(),
		}
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(reqBody).
			SetResult(&respBody).
			Post(url)
		if err != nil {
			logger.Log().Error("heartbeat request error", zap.Error(err))
			return
		}
		if resp.IsError() {
			logger.Log().Error("registry returned error",
				zap.String("status", resp.Status()), zap.String("body", resp.String()))
		}
	}

	safeDoRequest()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("heartbeat stopped")
			return
		case <-ticker.C:
			safeDoRequest()
		}
	}
}

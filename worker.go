package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"rtiler/httpapi"
	"rtiler/queue"
	"rtiler/service"
	"rtiler/synth"
)

//rabbitConfig broker settings from viper
func rabbitConfig() queue.Config {
	return queue.Config{
		Host:               viper.GetString("rabbit.host"),
		Port:               viper.GetInt("rabbit.port"),
		Username:           viper.GetString("rabbit.username"),
		Password:           viper.GetString("rabbit.password"),
		Exchange:           viper.GetString("rabbit.exchange"),
		ConnectionAttempts: viper.GetInt("rabbit.connection_attempts"),
		RetryDelay:         viper.GetDuration("rabbit.retry_delay"),
		SocketTimeout:      viper.GetDuration("rabbit.socket_timeout"),
		Prefetch:           viper.GetInt("rabbit.prefetch"),
	}
}

//newService wires raster cache, engine and service from config
func newService() (*service.Service, error) {
	cache, err := newRasterCache()
	if err != nil {
		return nil, err
	}
	engine := synth.New(cache, viper.GetInt("tiler.quota"))
	dirs := service.Dirs{
		Base:   viper.GetString("dirs.base"),
		Upload: viper.GetString("dirs.upload"),
	}
	return service.New(engine, cache, dirs, viper.GetString("tiler.default_pattern")), nil
}

func runWorker() error {
	svc, err := newService()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := viper.GetString("http.addr"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: httpapi.NewRouter(svc)}
		go func() {
			log.Infof("admin http listening on %s ~", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("admin http error, details: %s", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	cfg := rabbitConfig()
	log.Infof("worker quota %d, exchange %s, rabbit %s:%d", viper.GetInt("tiler.quota"), cfg.Exchange, cfg.Host, cfg.Port)
	return queue.NewWorker(cfg, svc).Run(ctx)
}

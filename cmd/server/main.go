// Command server wires every component described in SPEC_FULL.md into a
// single running process: Store, Event Bus, Real-Time Hub, Telephony
// Gateway, Media Bridge, Termination Arbiter, Campaign Engine, and the
// Webhook/API Surface, behind one HTTP listener.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/voxbridge/callengine/internal/aiprovider"
	"github.com/voxbridge/callengine/internal/api"
	"github.com/voxbridge/callengine/internal/arbiter"
	"github.com/voxbridge/callengine/internal/bridge"
	"github.com/voxbridge/callengine/internal/campaign"
	"github.com/voxbridge/callengine/internal/config"
	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/hub"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/store"
	"github.com/voxbridge/callengine/internal/telephony"
	"github.com/voxbridge/callengine/internal/telephony/vonage"
)

const (
	sweeperInterval = 30 * time.Second
	sweeperGraceTTL = 2 * time.Minute
)

func main() {
	v, err := config.InitConfig()
	if err != nil {
		panic(err)
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		panic(err)
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, JSON: true})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log logging.Logger) error {
	db, err := gorm.Open(dialector(cfg.StoreURI), &gorm.Config{})
	if err != nil {
		return err
	}
	if err := store.AutoMigrate(db); err != nil {
		return err
	}
	st := store.New(db, log)

	bus := eventbus.New(256, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		transport := eventbus.NewRedisTransport(rdb, bus, instanceID(), log)
		bus.SetTransport(transport)
		g.Go(func() error {
			if err := transport.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	gw, err := buildGateway(cfg, log)
	if err != nil {
		return err
	}

	arb := arbiter.New(st, log)
	ai := aiprovider.New(cfg.ServerURL, cfg.AIAPIKey, cfg.AIAgentID)
	br := bridge.New(st, bus, arb, gw, ai, log, cfg.InactivityMs, cfg.DurationCapMs)

	eng := campaign.New(st, bus, gw, cfg.ServerURL, log)
	if err := eng.Start(gctx); err != nil {
		return err
	}
	defer eng.Stop()

	sweeper := store.NewSweeper(st, sweeperInterval, sweeperGraceTTL, log)
	sweeper.Start()
	defer sweeper.Stop()

	snapshotter := hub.NewStoreSnapshotter(st)
	h := hub.New(bus, snapshotter, log)

	router := api.New(api.Deps{
		Config:  cfg,
		Log:     log,
		Store:   st,
		Bus:     bus,
		Gateway: gw,
		AI:      ai,
		Engine:  eng,
		Arbiter: arb,
		Bridge:  br,
		Hub:     h,
	})

	srv := &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler: router,
	}

	g.Go(func() error {
		log.Infow("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildGateway selects the telephony.Gateway implementation per
// TELEPHONY_PROVIDER; the Campaign Engine, Media Bridge, and API surface
// never branch on provider, only this wiring does (spec §4.4).
func buildGateway(cfg *config.AppConfig, log logging.Logger) (telephony.Gateway, error) {
	switch cfg.TelephonyProvider {
	case "vonage":
		key, err := base64.StdEncoding.DecodeString(cfg.VonagePrivateKey)
		if err != nil {
			// Accept a raw PEM value too, for operators who paste it unencoded.
			key = []byte(cfg.VonagePrivateKey)
		}
		return vonage.New(vonage.Credentials{
			ApplicationID: cfg.VonageApplicationID,
			PrivateKey:    key,
			FromNumber:    cfg.TelephonyNumber,
		}, log)
	default:
		return telephony.NewTwilioGateway(telephony.Credentials{
			AccountSID: cfg.TelephonySID,
			AuthToken:  cfg.TelephonyToken,
			FromNumber: cfg.TelephonyNumber,
		}, log), nil
	}
}

func dialector(uri string) gorm.Dialector {
	if strings.HasPrefix(uri, "file:") || strings.HasSuffix(uri, ".db") {
		return sqlite.Open(uri)
	}
	return postgres.Open(uri)
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "callengine"
	}
	return host
}


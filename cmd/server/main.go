package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youruser/musiccard/internal/api"
	"github.com/youruser/musiccard/internal/config"
	imagepkg "github.com/youruser/musiccard/internal/image"
	"github.com/youruser/musiccard/internal/logger"
	"github.com/youruser/musiccard/internal/music"
	"github.com/youruser/musiccard/internal/proxy"
	"github.com/youruser/musiccard/internal/theme"
	"github.com/youruser/musiccard/internal/util"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultPath, "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, closer, err := logger.New(cfg.Log.File, logger.ParseLevel(cfg.Log.Level), cfg.Log.MaxSizeMB)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, err := proxy.New(proxy.Options{
		Timeout:      cfg.ProxyTimeout(),
		UserAgent:    cfg.Proxy.UserAgent,
		Referer:      cfg.Proxy.Referer,
		AllowedHosts: cfg.Proxy.AllowedHosts,
		Logger:       log.With("component", "proxy"),
	})
	if err != nil {
		return fmt.Errorf("init image proxy: %w", err)
	}

	resolver := music.NewResolver(cfg.Retry.Resolve.Policy(), cfg.ProxyTimeout(), log.With("component", "resolver"))
	providers := []music.Provider{
		music.NewNetease(music.NeteaseOptions{
			BaseURL:        cfg.Netease.BaseURL,
			RequestTimeout: cfg.NeteaseRequestTimeout(),
			Deadline:       cfg.NeteaseDeadline(),
			Policy:         cfg.Retry.Metadata.Policy(),
			Logger:         log.With("component", "netease"),
		}),
	}
	if cfg.Spotify.Enabled() {
		providers = append(providers, music.NewSpotify(music.SpotifyOptions{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Policy:       cfg.Retry.Metadata.Policy(),
			Logger:       log.With("component", "spotify"),
		}))
	} else {
		log.Info("spotify provider disabled: no credentials configured")
	}
	metadata := music.NewService(cfg.MetadataTTL(), resolver, log.With("component", "music"), providers...)

	if err := util.EnsureDir(cfg.Server.DataDir); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	catalog, err := theme.NewCatalog(cfg.Server.DataDir, log.With("component", "themes"))
	if err != nil {
		return err
	}
	if err := catalog.Watch(ctx); err != nil {
		log.Warn("theme hot reload disabled", "error", err)
	}

	fonts, err := imagepkg.LoadFonts(cfg.Render.FontRegular, cfg.Render.FontBold)
	if err != nil {
		return fmt.Errorf("load fonts: %w", err)
	}
	renderer := imagepkg.NewRenderer(imagepkg.RendererOptions{
		Images: imagepkg.NewLoader(imagepkg.LoaderOptions{
			AssetsDir: cfg.Server.AssetsDir,
			ProxyBase: cfg.Image.ProxyBase,
			Fetcher:   fetcher,
			Timeout:   cfg.ImageLoadTimeout(),
			Policy:    cfg.Retry.Image.Policy(),
			Logger:    log.With("component", "images"),
		}),
		Fonts:     fonts,
		PlayRatio: cfg.Render.PlayDurationRatio,
		ColorTTL:  cfg.ColorTTL(),
		Logger:    log.With("component", "render"),
	})

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(&api.Handlers{
		Metadata:    metadata,
		Resolver:    resolver,
		Images:      fetcher,
		Renderer:    renderer,
		Themes:      catalog,
		LyricLines:  cfg.Render.LyricLines,
		ProxyMaxAge: cfg.Proxy.MaxAgeSeconds,
		Log:         log,
	}, log.With("component", "http"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Server.Addr, "platforms", metadata.Platforms())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

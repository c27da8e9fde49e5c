package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/provider"
	"github.com/dmitrymomot/notifykit/pkg/provider/fcmpush"
	"github.com/dmitrymomot/notifykit/pkg/provider/kavenegarsms"
	"github.com/dmitrymomot/notifykit/pkg/provider/postmarkmail"
	"github.com/dmitrymomot/notifykit/pkg/provider/smtpmail"
	"github.com/dmitrymomot/notifykit/pkg/provider/twiliosms"
	"github.com/dmitrymomot/notifykit/pkg/provider/webpush"
)

// buildAdapters constructs every vendor adapter named in the configuration.
// Each vendor loads its own credential section from the environment, so
// enabling a vendor without its credentials fails at startup rather than
// on the first send.
func buildAdapters(ctx context.Context, appCfg AppConfig, log *slog.Logger) ([]provider.Adapter, error) {
	var adapters []provider.Adapter

	add := func(a provider.Adapter, err error) error {
		if err != nil {
			return err
		}
		adapters = append(adapters, a)
		log.Info("registered provider adapter",
			slog.String("provider", a.Name()),
			slog.String("channel", string(a.Channel())))
		return nil
	}

	for _, name := range appCfg.vendors("email") {
		switch name {
		case postmarkmail.AdapterName:
			var cfg postmarkmail.Config
			config.MustLoad(&cfg)
			if err := add(adapterOrErr(postmarkmail.New(cfg))); err != nil {
				return nil, err
			}
		case smtpmail.AdapterName:
			var cfg smtpmail.Config
			config.MustLoad(&cfg)
			if err := add(adapterOrErr(smtpmail.New(cfg))); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown email vendor %q", name)
		}
	}

	for _, name := range appCfg.vendors("sms") {
		switch name {
		case twiliosms.AdapterName:
			var cfg twiliosms.Config
			config.MustLoad(&cfg)
			if err := add(adapterOrErr(twiliosms.New(cfg))); err != nil {
				return nil, err
			}
		case kavenegarsms.AdapterName:
			var cfg kavenegarsms.Config
			config.MustLoad(&cfg)
			if err := add(adapterOrErr(kavenegarsms.New(cfg))); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown sms vendor %q", name)
		}
	}

	for _, name := range appCfg.vendors("push") {
		switch name {
		case fcmpush.AdapterName:
			var cfg fcmpush.Config
			config.MustLoad(&cfg)
			if err := add(adapterOrErr(fcmpush.New(ctx, cfg))); err != nil {
				return nil, err
			}
		case webpush.AdapterName:
			var cfg webpush.Config
			config.MustLoad(&cfg)
			if err := add(adapterOrErr(webpush.New(cfg))); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown push vendor %q", name)
		}
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no provider adapters configured")
	}
	return adapters, nil
}

// adapterOrErr flattens the (concrete adapter, error) pairs the vendor
// constructors return into the provider.Adapter interface.
func adapterOrErr[A provider.Adapter](a A, err error) (provider.Adapter, error) {
	return a, err
}

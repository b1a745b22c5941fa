package cli

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/engram/internal/config"
	"github.com/felixgeelhaar/engram/internal/credential"
	"github.com/felixgeelhaar/engram/internal/dedup"
	"github.com/felixgeelhaar/engram/internal/embed"
	"github.com/felixgeelhaar/engram/internal/extract"
	"github.com/felixgeelhaar/engram/internal/observe"
	"github.com/felixgeelhaar/engram/internal/provider"
	"github.com/felixgeelhaar/engram/internal/retrieve"
	"github.com/felixgeelhaar/engram/internal/store"
)

// app holds the wired components every command works against.
type app struct {
	cfg       *config.Config
	obs       *observe.Observer
	store     *store.SQLiteStore
	gateway   *embed.Gateway
	pipeline  *extract.Pipeline
	retriever *retrieve.Retriever
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var obs *observe.Observer
	if jsonOut {
		obs = observe.NewJSON(os.Stdout, verbose)
	} else {
		obs = observe.New(os.Stdout, verbose)
	}

	storeLayer, err := store.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	embedProvider, err := newProvider(cfg.Embed, storeLayer, true)
	if err != nil {
		storeLayer.Close()
		return nil, err
	}
	gateway, err := embed.New(embedProvider, cfg.ProviderTimeout)
	if err != nil {
		storeLayer.Close()
		return nil, err
	}

	gateProvider, err := newProvider(cfg.Gate, storeLayer, false)
	if err != nil {
		storeLayer.Close()
		return nil, err
	}
	extractProvider, err := newProvider(cfg.Extract, storeLayer, false)
	if err != nil {
		storeLayer.Close()
		return nil, err
	}

	dd, err := dedup.New(storeLayer, gateway, cfg.Dedup.MergeThreshold, cfg.Dedup.RelatedThreshold, obs)
	if err != nil {
		storeLayer.Close()
		return nil, err
	}

	pipeline := extract.NewPipeline(
		extract.NewGate(gateProvider, cfg.ProviderTimeout),
		extract.NewExtractor(extractProvider, cfg.ProviderTimeout),
		dd,
		gateway,
		storeLayer,
		obs,
		extract.Config{NeighborFloor: cfg.Dedup.RelatedThreshold},
	)

	retriever := retrieve.New(storeLayer, gateway, obs, retrieve.Config{
		Floor: cfg.Retrieval.Floor,
	})

	return &app{
		cfg:       cfg,
		obs:       obs,
		store:     storeLayer,
		gateway:   gateway,
		pipeline:  pipeline,
		retriever: retriever,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.obs.Close()
}

// newProvider builds a provider for one capability. API keys come from
// the configuration table (encrypted at rest) with an environment
// fallback. embedding selects whether cap.Model names a chat model or an
// embedding model.
func newProvider(cap config.Capability, s *store.SQLiteStore, embedding bool) (provider.Provider, error) {
	switch cap.Provider {
	case "ollama":
		if embedding {
			p, err := provider.NewOllamaProvider("", cap.Model)
			return p, err
		}
		p, err := provider.NewOllamaProvider(cap.Model, "")
		return p, err
	case "openai":
		apiKey, err := loadAPIKey(s, "openai.api_key", "OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		baseURL, _ := s.GetConfig("openai.base_url")
		p, err := provider.NewOpenAIProvider(apiKey, baseURL, cap.Model)
		return p, err
	case "gemini":
		apiKey, err := loadAPIKey(s, "gemini.api_key", "GEMINI_API_KEY")
		if err != nil {
			return nil, err
		}
		p, err := provider.NewGeminiProvider(apiKey, cap.Model)
		return p, err
	case "anthropic":
		apiKey, err := loadAPIKey(s, "anthropic.api_key", "ANTHROPIC_API_KEY")
		if err != nil {
			return nil, err
		}
		p, err := provider.NewAnthropicProvider(apiKey, cap.Model)
		return p, err
	case "stub":
		return provider.NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cap.Provider)
	}
}

func loadAPIKey(s *store.SQLiteStore, configKey, envKey string) (string, error) {
	stored, err := s.GetConfig(configKey)
	if err != nil {
		return "", err
	}
	if stored != "" {
		mgr, err := credential.NewManager()
		if err != nil {
			return "", err
		}
		return mgr.Decrypt(stored)
	}
	return os.Getenv(envKey), nil
}

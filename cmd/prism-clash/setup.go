package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/application"
	domainConfig "github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/domain/region"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/infra/api"
	infraConfig "github.com/Yat-Muk/prism-clash/internal/infra/config"
	"github.com/Yat-Muk/prism-clash/internal/infra/fetcher"
	"github.com/Yat-Muk/prism-clash/internal/infra/store"
	"github.com/Yat-Muk/prism-clash/internal/infra/template"
	"github.com/Yat-Muk/prism-clash/internal/pkg/appctx"
	"github.com/Yat-Muk/prism-clash/internal/pkg/cert"
	"github.com/Yat-Muk/prism-clash/internal/pkg/crypto"
)

// AppDependencies 組裝好的服務
type AppDependencies struct {
	Log       *zap.Logger
	Paths     *appctx.Paths
	Config    *domainConfig.AtomicContainer
	ConfigSvc *application.ConfigService
	DB        *store.DB
	Sources   *application.SourceStore
	Rules     *application.RuleService
	Resources *application.ResourceService
	Build     *application.BuildService
	Refresh   *application.RefreshService
}

// Close 釋放存儲
func (d *AppDependencies) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// APIDeps HTTP 接口依賴
func (d *AppDependencies) APIDeps() api.Deps {
	return api.Deps{
		Build:     d.Build,
		Rules:     d.Rules,
		Resources: d.Resources,
		Refresh:   d.Refresh,
		Config:    d.Config,
		Logger:    d.Log,
	}
}

func initializeDependencies(log *zap.Logger, paths *appctx.Paths) (*AppDependencies, error) {
	// ==========================================
	// 1. 配置
	// ==========================================
	encryptor, err := crypto.NewEncryptor(paths.MasterKeyFile)
	if err != nil {
		return nil, fmt.Errorf("初始化加密器失敗: %w", err)
	}
	configRepo := infraConfig.NewFileRepository(paths.ConfigFile, encryptor, log)
	configSvc := application.NewConfigService(configRepo, nil, log)

	cfg, err := configSvc.LoadWithMigration(context.Background())
	if err != nil {
		return nil, fmt.Errorf("加載配置失敗: %w", err)
	}
	if cfg.Template.Path == "" || cfg.Template.Path == domainConfig.DefaultConfig().Template.Path {
		cfg.Template.Path = paths.TemplateFile
	}
	if cfg.Store.Path == "" || cfg.Store.Path == domainConfig.DefaultConfig().Store.Path {
		cfg.Store.Path = paths.StoreDir
	}
	if tc := &cfg.Server.TLS; tc.Enabled {
		if tc.CertFile == "" {
			tc.CertFile = filepath.Join(paths.CertDir, "server.crt")
		}
		if tc.KeyFile == "" {
			tc.KeyFile = filepath.Join(paths.CertDir, "server.key")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置無效: %w", err)
	}
	if _, statErr := os.Stat(paths.ConfigFile); errors.Is(statErr, os.ErrNotExist) {
		if err := configSvc.SaveWithDefaults(context.Background(), cfg); err != nil {
			log.Warn("初始化保存配置失敗", zap.Error(err))
		}
	}

	runtime := domainConfig.NewAtomicContainer(cfg)
	configSvc = application.NewConfigService(configRepo, runtime, log)

	// ==========================================
	// 2. 基礎設施
	// ==========================================
	storeCfg := store.DefaultConfig(cfg.Store.Path)
	storeCfg.InMemory = cfg.Store.InMemory
	db, err := store.Open(storeCfg, log)
	if err != nil {
		return nil, fmt.Errorf("打開狀態存儲失敗: %w", err)
	}
	stateRepo := store.NewStateRepository(db, log)

	grouper, err := newGrouper(cfg.Compose.Region)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// ==========================================
	// 3. 應用服務
	// ==========================================
	sources := application.NewSourceStore()
	composer := application.NewComposer(runtime, grouper, log.Named("compose"))
	resources := application.NewResourceService(stateRepo, sources, runtime, log.Named("resource"))
	rules := application.NewRuleService(stateRepo, runtime, log.Named("rule"))
	build := application.NewBuildService(stateRepo, sources, composer, log.Named("build"))
	refresh := application.NewRefreshService(fetcher.New(log.Named("fetch")), stateRepo, sources, resources, runtime, log.Named("refresh"))

	return &AppDependencies{
		Log:       log,
		Paths:     paths,
		Config:    runtime,
		ConfigSvc: configSvc,
		DB:        db,
		Sources:   sources,
		Rules:     rules,
		Resources: resources,
		Build:     build,
		Refresh:   refresh,
	}, nil
}

func newGrouper(rc domainConfig.RegionConfig) (*region.Grouper, error) {
	table := region.DefaultTable()
	if rc.TableFile != "" {
		data, err := os.ReadFile(rc.TableFile)
		if err != nil {
			return nil, fmt.Errorf("讀取地區表失敗: %w", err)
		}
		if table, err = region.LoadTable(data); err != nil {
			return nil, fmt.Errorf("解析地區表失敗: %w", err)
		}
	}
	return region.NewGrouper(table, rc.CacheTTL), nil
}

// loadTemplate 加載模板到來源快照；文件不存在時從空配置開始
func loadTemplate(deps *AppDependencies) error {
	path := deps.Config.Get().Template.Path
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		deps.Log.Warn("模板不存在，從空配置開始", zap.String("path", path))
		return nil
	}

	tpl, err := template.Load(path, deps.Log)
	if err != nil {
		return err
	}
	deps.Sources.Update(func(s *state.Sources) *state.Sources { return s.WithTemplate(tpl) })
	deps.Log.Info("模板已加載", zap.String("path", path), zap.Int("rules", len(tpl.Rules)))
	return nil
}

// enableTLS 按配置為服務啟用 HTTPS，需要時先生成自簽名證書
func enableTLS(srv *api.Server, sc domainConfig.ServerConfig, log *zap.Logger) error {
	tc := sc.TLS
	if tc.SelfSigned {
		hosts := tc.Hosts
		if len(hosts) == 0 {
			if u, err := url.Parse(sc.BaseURL); err == nil && u.Hostname() != "" {
				hosts = []string{u.Hostname()}
			}
		}
		if _, err := cert.NewSelfSignedGenerator(log).EnsureSelfSigned(tc.CertFile, tc.KeyFile, hosts); err != nil {
			return fmt.Errorf("生成自簽名證書失敗: %w", err)
		}
	}
	if err := srv.EnableTLS(tc.CertFile, tc.KeyFile); err != nil {
		return fmt.Errorf("啟用 HTTPS 失敗: %w", err)
	}
	return nil
}

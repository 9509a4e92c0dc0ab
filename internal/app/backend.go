package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"inventory-admin/internal/config"
	"inventory-admin/internal/db"
	"inventory-admin/internal/events"
	"inventory-admin/internal/report"
	"inventory-admin/internal/store"
	"inventory-admin/internal/store/local"
	"inventory-admin/internal/store/memory"
	"inventory-admin/internal/store/mongo"
	"inventory-admin/internal/store/postgres"
	"inventory-admin/internal/store/rest"
)

// Backend is an opened storage backend and whatever must be released with it.
type Backend struct {
	Name  string
	Store store.Backend
	Local *local.Store
	close func()
}

// Close releases connections held by the backend.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// OpenBackend opens the backend selected by cfg.Storage.Backend. Postgres
// schemas are migrated on open.
func OpenBackend(ctx context.Context, cfg config.Config) (*Backend, error) {
	return open(ctx, cfg, cfg.Storage.Backend)
}

// OpenCloud opens a cloud backend (postgres or mongo) as a migration target.
func OpenCloud(ctx context.Context, cfg config.Config, name string) (*Backend, error) {
	switch name {
	case config.BackendPostgres, config.BackendMongo:
		return open(ctx, cfg, name)
	}
	return nil, fmt.Errorf("migration target must be %s or %s, got %q", config.BackendPostgres, config.BackendMongo, name)
}

func open(ctx context.Context, cfg config.Config, name string) (*Backend, error) {
	switch name {
	case config.BackendMemory:
		return &Backend{Name: name, Store: memory.NewStore()}, nil

	case config.BackendLocal:
		s, err := local.NewStore(cfg.Local.DataDir, cfg.Local.Namespace)
		if err != nil {
			return nil, err
		}
		if on, err := s.CloudMode(ctx); err == nil && on {
			log.Printf("app: local data in %s was already migrated to cloud storage", cfg.Local.DataDir)
		}
		return &Backend{Name: name, Store: s, Local: s}, nil

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.Postgres.URL, db.WithMaxConns(cfg.Postgres.MaxConns), db.WithConnectTimeout(10*time.Second))
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{Name: name, Store: postgres.NewStore(pool), close: pool.Close}, nil

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:  name,
			Store: mongo.NewStore(client, cfg.Mongo.DBName),
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					log.Printf("app: mongo disconnect: %v", err)
				}
			},
		}, nil

	case config.BackendREST:
		c, err := rest.NewClient(cfg.REST.BaseURL)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: name, Store: c}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", name)
}

// OpenPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func OpenPublisher(cfg config.Config) events.Publisher {
	brokers := cfg.Kafka.BrokerList()
	if len(brokers) == 0 {
		return events.Nop{}
	}
	log.Printf("app: publishing change events to %s on %v", cfg.Kafka.Topic, brokers)
	return events.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
}

// OpenUploader returns nil when S3 is not configured.
func OpenUploader(ctx context.Context, cfg config.Config) (*report.Uploader, error) {
	if !cfg.S3.Enabled() {
		return nil, nil
	}
	return report.NewUploader(ctx, report.S3Config{
		Bucket:           cfg.S3.Bucket,
		Region:           cfg.S3.Region,
		AccessKeyID:      cfg.S3.AccessKeyID,
		SecretAccessKey:  cfg.S3.SecretAccessKey,
		CloudFrontDomain: cfg.S3.CloudFrontDomain,
	})
}

// Wire opens everything cfg describes and returns the service together with
// a cleanup function.
func Wire(ctx context.Context, cfg config.Config) (ApplicationService, *Backend, func(), error) {
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	uploader, err := OpenUploader(ctx, cfg)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}
	publisher := OpenPublisher(cfg)

	svc, err := NewAppService(Deps{
		Backend:           backend.Store,
		BackendName:       backend.Name,
		Local:             backend.Local,
		Publisher:         publisher,
		Uploader:          uploader,
		LowStockThreshold: cfg.Report.LowStockThreshold,
	})
	if err != nil {
		publisher.Close()
		backend.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		svc.Close()
		if err := publisher.Close(); err != nil {
			log.Printf("app: close publisher: %v", err)
		}
		backend.Close()
	}
	return svc, backend, cleanup, nil
}

// Command gateway runs the brokerage gateway client as a daemon: one
// resilient session, journaled order history, startup stream subscriptions,
// and optional Postgres, Redis, and Kafka mirrors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"sort"
	"sync"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/pkg/sys"

	"tradegw/internal/client"
	"tradegw/internal/export"
	"tradegw/internal/feed"
	"tradegw/internal/journal"
	"tradegw/internal/obs"
	"tradegw/internal/ops"
	"tradegw/internal/order"
	"tradegw/internal/session"
	"tradegw/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON or YAML config")
	endpoint := flag.String("endpoint", "", "Gateway endpoint override")
	clientID := flag.Int("client-id", 0, "Gateway client id override")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *endpoint != "" {
		loaded.Gateway.Endpoint = *endpoint
	}
	if *clientID != 0 {
		loaded.Gateway.ClientID = int32(*clientID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sys.Shutdown()
		cancel()
	}()

	if err := run(ctx, loaded); err != nil {
		log.Fatalf("gateway client failed: %v", err)
	}
	log.Printf("gateway client stopped")
}

func run(parent context.Context, loaded ops.Loaded) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if loaded.Profile.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: loaded.Profile.AppName,
			ServerAddress:   loaded.Profile.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return fmt.Errorf("start profiler: %w", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	metrics := obs.NewMetrics()
	cfg := client.Config{
		Endpoint:          loaded.Gateway.Endpoint,
		ClientID:          loaded.Gateway.ClientID,
		TLS:               loaded.Gateway.TLS,
		DialTimeout:       loaded.Session.DialTimeout,
		HandshakeTimeout:  loaded.Session.HandshakeTimeout,
		Heartbeat:         loaded.Session.Heartbeat,
		MissLimit:         loaded.Session.MissLimit,
		Backoff:           loaded.Session.Backoff,
		MaxAttempts:       loaded.Session.MaxAttempts,
		WriteQueueSize:    loaded.Session.WriteQueueSize,
		WriteRate:         loaded.Session.WriteRate,
		WriteBurst:        loaded.Session.WriteBurst,
		WriteTimeout:      loaded.Session.WriteTimeout,
		MaxPayload:        loaded.Session.MaxPayload,
		OfflineOrderQueue: loaded.Session.OfflineOrderQueue,
		SubscriberDepth:   loaded.Feed.SubscriberDepth,
		EventQueueSize:    loaded.Feed.EventQueueSize,
		RequestCeiling:    loaded.Requests.Ceiling,
		RequestTimeout:    loaded.Requests.Timeout,
		Metrics:           metrics,
	}

	var restored []order.Order
	if loaded.Features.Journal {
		jcfg := journal.DefaultConfig(loaded.Journal.Dir)
		if loaded.Journal.SegmentMaxBytes > 0 {
			jcfg.SegmentMaxBytes = loaded.Journal.SegmentMaxBytes
		}
		if loaded.Journal.SegmentMaxAge > 0 {
			jcfg.SegmentMaxDuration = loaded.Journal.SegmentMaxAge
		}
		if loaded.Journal.QueueSize > 0 {
			jcfg.QueueSize = loaded.Journal.QueueSize
		}
		jcfg.Metrics = metrics

		var err error
		restored, err = order.RestoreFromJournal(jcfg.Dir, jcfg.FilePrefix)
		if err != nil {
			return fmt.Errorf("restore orders from journal: %w", err)
		}
		writer, err := journal.NewWriter(jcfg)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		if err := writer.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = writer.Close() }()
		cfg.Journal = writer
	}

	if loaded.Features.Store {
		pg, err := conn.New(conn.Option{
			Host:     loaded.Store.Host,
			Port:     loaded.Store.Port,
			User:     loaded.Store.User,
			Password: loaded.Store.Password,
			Database: loaded.Store.Database,
			SSLMode:  loaded.Store.SSLMode,
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer func() { _ = pg.Close() }()
		store, err := order.NewStore(order.StoreConfig{
			Client:    pg,
			QueueSize: loaded.Store.QueueSize,
			Metrics:   metrics,
		})
		if err != nil {
			return fmt.Errorf("open order store: %w", err)
		}
		store.Start(ctx)
		defer store.Close()
		cfg.Store = store
	}

	cli, err := client.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()
	if len(restored) > 0 {
		cli.RestoreOrders(restored)
		log.Printf("restored %d working orders from journal", len(restored))
	}

	var mirror *export.SnapshotMirror
	if loaded.Features.Redis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     loaded.Redis.Addr,
			Password: loaded.Redis.Password,
			DB:       loaded.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		mirror, err = export.NewSnapshotMirror(export.SnapshotMirrorConfig{
			Client:    rdb,
			KeyPrefix: loaded.Redis.KeyPrefix,
			TTL:       loaded.Redis.TTL,
			Metrics:   metrics,
		})
		if err != nil {
			return err
		}
		mirror.Start(ctx)
		defer mirror.Close()
	}

	if loaded.Features.Kafka {
		publisher, err := export.NewEventPublisher(export.EventPublisherConfig{
			Brokers:   loaded.Kafka.Brokers,
			Topic:     loaded.Kafka.Topic,
			QueueSize: loaded.Kafka.QueueSize,
			Metrics:   metrics,
		})
		if err != nil {
			return err
		}
		publisher.Start(ctx)
		defer func() { _ = publisher.Close() }()
		stop := cli.OnOrderEvent(publisher.Publish)
		defer stop()
	}

	// Configured streams open once the first handshake lands; reconnects
	// replay them without help.
	var openOnce sync.Once
	stopState := cli.OnSessionState(func(st session.State) {
		if st != session.StateAuthenticated {
			return
		}
		openOnce.Do(func() { openStreams(cli, loaded.Feed.Subscriptions, mirror) })
	})
	defer stopState()

	var statusDone chan error
	if loaded.Status.Addr != "" {
		status := ops.NewStatusServer(ops.StatusServerConfig{
			Addr:     loaded.Status.Addr,
			Metrics:  metrics,
			Healthy:  cli.IsHealthy,
			Snapshot: func() any { return statusView(cli) },
		})
		statusDone = make(chan error, 1)
		go func() { statusDone <- status.Run(ctx) }()
	}

	err = cli.Run(ctx)
	cancel()
	if statusDone != nil {
		if serr := <-statusDone; serr != nil {
			log.Printf("status server failed: %v", serr)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStreams(cli *client.Client, subs []ops.SubscriptionSetting, mirror *export.SnapshotMirror) {
	for _, sub := range subs {
		handler := func(feed.Update) {}
		if mirror != nil {
			handler = mirror.Publish
		}
		if _, err := cli.OnTick(sub.Symbol, sub.Kind, handler); err != nil {
			log.Printf("subscribe %s/%s failed: %v", sub.Symbol, sub.Kind, err)
			continue
		}
		log.Printf("subscribed %s/%s", sub.Symbol, sub.Kind)
	}
}

type statusDoc struct {
	State      string       `json:"state"`
	Epoch      uint64       `json:"epoch"`
	Healthy    bool         `json:"healthy"`
	Streams    []string     `json:"streams"`
	OpenOrders int          `json:"openOrders"`
	Metrics    obs.Snapshot `json:"metrics"`
}

func statusView(cli *client.Client) statusDoc {
	keys := cli.ActiveStreams()
	streams := make([]string, 0, len(keys))
	for _, k := range keys {
		streams = append(streams, k.Symbol+"/"+k.Kind.String())
	}
	sort.Strings(streams)
	return statusDoc{
		State:      cli.State().String(),
		Epoch:      cli.Epoch(),
		Healthy:    cli.IsHealthy(),
		Streams:    streams,
		OpenOrders: len(cli.OpenOrders()),
		Metrics:    cli.Metrics().Snapshot(),
	}
}

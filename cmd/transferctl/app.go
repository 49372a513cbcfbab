package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/joripage/transfer-orders/config"
	kafkawrapper "github.com/joripage/transfer-orders/pkg/infra/kafka"
	redis_wrapper "github.com/joripage/transfer-orders/pkg/infra/redis"
	"github.com/joripage/transfer-orders/pkg/client"
	"github.com/joripage/transfer-orders/pkg/ledger"
	"github.com/joripage/transfer-orders/pkg/logging"
	"github.com/joripage/transfer-orders/pkg/metrics"
	"github.com/joripage/transfer-orders/pkg/network"
	"github.com/joripage/transfer-orders/pkg/publish"
	"github.com/joripage/transfer-orders/pkg/session"
	"github.com/joripage/transfer-orders/pkg/store"
	"github.com/joripage/transfer-orders/pkg/txn"
	"github.com/joripage/transfer-orders/pkg/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds every wired component of one CLI run.
type app struct {
	cfg      *config.AppConfig
	logger   *logging.Logger
	registry *prometheus.Registry

	rpcClient *rpc.Client
	provider  *wallet.RPCProvider
	store     *store.Store
	identity  *session.Identity
	client    *client.Client
	journal   *txn.Journal

	redis    *redis.Client
	producer *kafkawrapper.Producer
}

func newApp(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	m := metrics.NewClientMetrics(a.registry)

	rpcClient, err := wallet.DialWithBackoff(ctx, wallet.DialConfig{
		URL:            cfg.Wallet.RPCURL,
		MaxElapsedTime: cfg.Wallet.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dial wallet: %w", err)
	}
	a.rpcClient = rpcClient
	ethClient := ethclient.NewClient(rpcClient)

	a.provider = wallet.NewRPCProvider(rpcClient, ethClient,
		wallet.WithReceiptPolling(wallet.ReceiptPolling{
			InitialInterval: cfg.Tx.ReceiptPollInitial,
			MaxInterval:     cfg.Tx.ReceiptPollMax,
		}),
		wallet.WithLogger(logger),
	)

	guard := network.NewGuard(a.provider, cfg.Network,
		network.WithAlerter(network.AlerterFunc(consoleAlert)),
		network.WithObserver(m),
		network.WithLogger(logger),
	)

	contract, err := ledger.NewEVMContract(cfg.ContractAddress(), ethClient, a.provider)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	// The gateway needs the active account, which the identity owns, and the
	// identity needs the store, which reads through the gateway.
	var identity *session.Identity
	gateway := ledger.NewGateway(contract,
		ledger.SenderFunc(func() (common.Address, bool) {
			if identity == nil {
				return common.Address{}, false
			}
			return identity.Current()
		}),
		ledger.WithGasLimit(cfg.Ledger.GasLimit),
		ledger.WithLogger(logger),
	)

	a.store = store.New(gateway,
		store.WithGuard(guard),
		store.WithRecentLimit(cfg.Store.RecentLimit),
		store.WithObserver(m),
		store.WithLogger(logger),
	)

	identity = session.NewIdentity(a.provider, guard, a.store,
		session.WithProof(cfg.Wallet.OwnershipProof),
		session.WithLogger(logger),
	)
	a.identity = identity

	a.journal = txn.NewJournal()
	sinks := txn.Sinks{a.journal}
	if cfg.Kafka.Enabled() {
		a.producer = kafkawrapper.NewProducer(*cfg.Kafka)
		sinks = append(sinks, publish.NewTxEventSink(a.producer))
		logger.Info(ctx, "tx events enabled", zap.String("topic", a.producer.Topic()))
	}
	coordinator := txn.NewCoordinator(guard, a.provider, a.store,
		txn.WithEventSink(sinks),
		txn.WithObserver(m),
		txn.WithLogger(logger),
	)

	if cfg.Redis.Enabled() {
		a.redis, err = redis_wrapper.InitRedis(ctx, cfg.Redis)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init redis: %w", err)
		}
		publisher := publish.NewSnapshotPublisher(a.redis, cfg.Redis.Channel, logger)
		a.store.Subscribe(publisher.OnSnapshot)
	}

	a.client = client.New(identity, gateway, coordinator, a.store, logger)
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(ctx); err != nil {
			a.logger.Warn(ctx, "close kafka producer fail", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn(ctx, "close redis fail", zap.Error(err))
		}
	}
	if a.rpcClient != nil {
		a.rpcClient.Close()
	}
}

func consoleAlert(_ context.Context, msg string) {
	fmt.Println("!!", msg)
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"certflow/internal/audit"
	"certflow/internal/ca"
	"certflow/internal/issuer"
	"certflow/internal/notify"
	"certflow/internal/pipeline"
	"certflow/internal/platform/bootstrap"
	"certflow/internal/platform/config"
	"certflow/internal/platform/logger"
	"certflow/internal/platform/metrics"
)

// sweeper runs one pass over a domain list. Transactions run concurrently
// across domains with a bounded group; each transaction stays a single
// linear sequence.
func main() {
	domainsFlag := flag.String("domains", "", "comma-separated domains to check")
	concurrency := flag.Int("concurrency", 4, "max concurrent transactions")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	domains := splitDomains(*domainsFlag)
	if len(domains) == 0 {
		log.Error("no domains given, pass -domains")
		os.Exit(1)
	}

	ctx := context.Background()

	store, cleanup, err := bootstrap.ArtifactStore(ctx, cfg)
	if err != nil {
		log.Error("artifact store setup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	var sender notify.Sender
	if cfg.NotifyTopic != "" {
		kafka, err := notify.NewKafkaSender(ctx, cfg.KafkaBrokers, cfg.NotifyTopic)
		if err != nil {
			log.Error("kafka sender setup failed", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		sender = kafka
	}

	m := metrics.New()
	router := notify.NewRouter(sender, log, m)
	service := pipeline.New(ca.NewInMemoryClient(), store, issuer.NewCertbotIssuer(cfg.CertbotEmail), audit.NewRecorder(store), router, log, m)

	var mu sync.Mutex
	var satisfied []notify.DomainCheck
	failed := false

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	for _, domain := range domains {
		g.Go(func() error {
			result, err := service.Run(gctx, domain)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error("sweep failed for domain", "domain", domain, "error", err)
				failed = true
				return nil // keep sweeping the other domains
			}
			if !result.Check.Expired {
				satisfied = append(satisfied, notify.DomainCheck{Domain: domain})
			}
			return nil
		})
	}
	_ = g.Wait()

	// One summary notification when the whole sweep found nothing to do.
	if !failed && len(satisfied) == len(domains) {
		msg := notify.Message{
			NotificationType: string(notify.TypeNoExpiring),
			DomainsChecked:   satisfied,
		}
		if payload, err := json.Marshal(msg); err == nil {
			service.Notify(ctx, payload)
		}
	}

	if failed {
		os.Exit(1)
	}
}

func splitDomains(s string) []string {
	var domains []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

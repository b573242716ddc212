package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/offline-asset-cache/internal/assets"
	"github.com/mohammed-shakir/offline-asset-cache/internal/controller"
)

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: assetctl <command> [args]

commands:
  check                 ping redis, the origin and kafka
  clear                 publish CLEAR_CACHES on the control topic
  cache-model <id>      publish CACHE_MODEL for one model
  skip-waiting          publish SKIP_WAITING
  paths [id]            print the precache set, or one model's paths`)
}

func checkRedis(ctx context.Context, addr string) error {
	fmt.Println("redis:", addr)
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	})
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// checkOrigin fetches the first core file the same way install would.
func checkOrigin(ctx context.Context, origin string, m assets.Manifest) error {
	target := strings.TrimRight(origin, "/") + "/"
	if len(m.CoreFiles) > 0 {
		target = strings.TrimRight(origin, "/") + m.CoreFiles[0]
	}
	fmt.Println("origin:", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("bad origin URL: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("origin get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Only read a small part of body
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("origin status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func newProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Version = sarama.V3_6_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return prod, nil
}

func checkKafka(brokers []string) error {
	fmt.Println("kafka:", strings.Join(brokers, ","))
	prod, err := newProducer(brokers)
	if err != nil {
		return err
	}
	return prod.Close()
}

func publish(brokers []string, topic string, m controller.Message) error {
	if m.Type == controller.MsgCacheModel {
		if err := assets.ValidateModelID(m.ModelID); err != nil {
			return err
		}
	}
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	prod, err := newProducer(brokers)
	if err != nil {
		return err
	}
	defer func() { _ = prod.Close() }()

	part, off, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(m.Type),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("published %s to %s[%d]@%d\n", m.Type, topic, part, off)
	return nil
}

func printPaths(m assets.Manifest, id string) {
	if id != "" {
		for _, p := range m.ModelPaths(id) {
			fmt.Println(p)
		}
		return
	}
	ps := m.Generate()
	for _, p := range ps.Core {
		fmt.Println("core", p)
	}
	for _, p := range ps.Speculative {
		fmt.Println("speculative", p)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	brokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getenv("KAFKA_CONTROL_TOPIC", "assetcache-control")

	manifest, err := assets.Load(os.Getenv("ASSET_MANIFEST"))
	if err != nil {
		return err
	}

	switch args[0] {
	case "check":
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := checkRedis(ctx, getenv("REDIS_ADDR", "localhost:6379")); err != nil {
			return err
		}
		if err := checkOrigin(ctx, getenv("ORIGIN_URL", "http://localhost:8080"), manifest); err != nil {
			return err
		}
		if err := checkKafka(brokers); err != nil {
			return err
		}
		fmt.Println("all checks passed")
		return nil
	case "clear":
		return publish(brokers, topic, controller.Message{Type: controller.MsgClearCaches})
	case "skip-waiting":
		return publish(brokers, topic, controller.Message{Type: controller.MsgSkipWaiting})
	case "cache-model":
		if len(args) < 2 {
			return errors.New("cache-model needs a model id")
		}
		return publish(brokers, topic, controller.Message{Type: controller.MsgCacheModel, ModelID: args[1]})
	case "paths":
		id := ""
		if len(args) > 1 {
			id = args[1]
		}
		printPaths(manifest, id)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "assetctl:", err)
		os.Exit(1)
	}
}

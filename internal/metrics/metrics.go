// Package metrics owns the Prometheus registry served on /metrics.
package metrics

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

// BuildFromEnv reads BUILD_VERSION, BUILD_REVISION and BUILD_DATE; version
// falls back to def.
func BuildFromEnv(def string) BuildInfo {
	b := BuildInfo{
		Version:   os.Getenv("BUILD_VERSION"),
		Revision:  os.Getenv("BUILD_REVISION"),
		BuildDate: os.Getenv("BUILD_DATE"),
	}
	if b.Version == "" {
		b.Version = def
	}
	return b
}

type Config struct {
	Build BuildInfo
	// what this instance caches with, exported as labels of assetcache_build_info
	StoreDriver string
	Codec       string
}

type Provider struct {
	reg *prometheus.Registry
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetcache_build_info",
			Help: "Build and storage info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "build_date", "store_driver", "codec"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.BuildDate, cfg.StoreDriver, cfg.Codec).Set(1)

	return &Provider{reg: reg}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

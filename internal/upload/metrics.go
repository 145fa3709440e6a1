package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pageUploadsTotal 记录单个对象上传的最终结果
	pageUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slidedrop_page_uploads_total",
			Help: "Total number of page object uploads by final result",
		},
		[]string{"result"},
	)

	// uploadRetriesTotal 记录单个对象的重试次数
	uploadRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidedrop_upload_retries_total",
		Help: "Total number of per-object upload retries",
	})

	uploadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slidedrop_uploads_in_flight",
		Help: "Number of object uploads currently in flight",
	})
)

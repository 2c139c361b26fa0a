package filesvc

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mkrupp/homecase-filevault/internal/domain"
)

//nolint:gochecknoglobals
var (
	fileOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filevault",
			Name:      "file_operations_total",
			Help:      "File service operations by operation and result.",
		},
		[]string{"op", "result"},
	)

	uploadedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "filevault",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes accepted by successful uploads.",
		},
	)
)

// resultLabel maps an operation error to a low-cardinality result label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrFileNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrMissingBlob):
		return "missing_blob"
	case errors.Is(err, domain.ErrEmptyFilename), errors.Is(err, domain.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, domain.ErrFileTooLarge):
		return "too_large"
	default:
		return "error"
	}
}

func observe(op string, err error) {
	fileOperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

package api

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

const internalErrorMessage = "Internal Server Error"

// Operation is a boundary operation. The returned value becomes the data of
// a successful envelope.
type Operation func(r *http.Request) (interface{}, error)

// Handle adapts an operation to an http.HandlerFunc. Every outcome is written
// as an envelope: client errors are logged as warnings, anything else as an
// error with a stack trace.
func Handle(logger *logrus.Logger, name string, op Operation) http.HandlerFunc {
	log := logger.WithField("operation", name)

	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithFields(logrus.Fields{
					"error": fmt.Sprint(rec),
					"path":  r.URL.Path,
					"stack": string(debug.Stack()),
				}).Error("Panic recovered")
				writeEnvelope(w, http.StatusInternalServerError, Failure(internalErrorMessage))
			}
		}()

		data, err := op(r)
		if err == nil {
			writeEnvelope(w, http.StatusOK, Success(data))
			return
		}

		status, message := classify(err)
		if status < http.StatusInternalServerError {
			log.WithFields(logrus.Fields{
				"status": status,
				"path":   r.URL.Path,
			}).WithError(err).Warn("Request rejected")
		} else {
			log.WithFields(logrus.Fields{
				"status": status,
				"path":   r.URL.Path,
				"stack":  string(debug.Stack()),
			}).WithError(err).Error("Request failed")
		}

		writeEnvelope(w, status, Failure(message))
	}
}

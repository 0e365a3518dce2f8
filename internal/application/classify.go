package application

import (
	"context"
	"errors"
	"strings"

	"github.com/ericfisherdev/credpool/internal/domain/model"
)

// classifyRule maps message evidence to an error kind. Rules are checked in
// order and the first match wins.
type classifyRule struct {
	kind    model.ErrorKind
	needles []string
}

// fallbackRules classify untyped failures, such as those from a foreign
// RotationManager implementation that does not return model errors.
var fallbackRules = []classifyRule{
	{
		kind:    model.KindNotFound,
		needles: []string{"not found", "does not exist", "no such credential"},
	},
	{
		kind: model.KindInvalidCredential,
		needles: []string{
			"missing refresh token", "invalid", "truncated", "malformed",
			"rejected", "unauthorized", "expired", "permission denied", "forbidden",
			"rate limited during validation", "only delete disabled",
		},
	},
	{
		kind: model.KindUpstream,
		needles: []string{
			"connection", "connect:", "timeout", "timed out", "deadline exceeded",
			"temporarily unavailable", "rate limited", "server error", "bad gateway",
			"service unavailable", "upstream",
		},
	},
}

// classify turns any failure into a *model.Error. Typed errors keep their
// kind; untyped ones go through fallbackRules. id fills in NotFound errors
// that do not carry one.
func classify(err error, id int64) *model.Error {
	if err == nil {
		return nil
	}

	if e, ok := model.AsError(err); ok {
		if e.Kind == model.KindNotFound && e.ID == 0 && id != 0 {
			return model.NotFound(id)
		}
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.Upstream("request timed out", err)
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range fallbackRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return fromKind(rule.kind, id, err)
			}
		}
	}
	return model.Internal("", err)
}

func fromKind(kind model.ErrorKind, id int64, err error) *model.Error {
	switch kind {
	case model.KindNotFound:
		return model.NotFound(id)
	case model.KindInvalidCredential:
		return &model.Error{Kind: kind, Err: err}
	case model.KindUpstream:
		return model.Upstream("", err)
	default:
		return model.Internal("", err)
	}
}

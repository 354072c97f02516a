package usecase

import (
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

type noopObserver struct{}

func (noopObserver) ObserveRetrieval(domain.ChatMode, int, bool) {}
func (noopObserver) ObserveWebSearch(int, bool)                  {}
func (noopObserver) ObserveScrapes([]domain.ScrapeResult)        {}
func (noopObserver) ObserveCompletion(domain.ChatMode, string, domain.CompletionState, int, time.Duration) {
}

func observerOrNoop(observer ports.PipelineObserver) ports.PipelineObserver {
	if observer == nil {
		return noopObserver{}
	}
	return observer
}

package pipeline

import (
	"time"

	"rngkiosk/internal/source"
)

// retrier is implemented by source.FailoverSource. The producer uses it to
// speculatively re-probe the primary device on a fixed schedule; Retry
// simply flips a flag, so if the primary is still down the very next
// ReadChunk falls back again immediately.
type retrier interface {
	Retry()
	OnPrimary() bool
}

// runProducer reads chunks from the bit source, expands them to individual
// bits, optionally injects a bias, and pushes them into bitCh. It checks
// ctx.Done at every loop iteration boundary and blocks on bitCh's
// backpressure the rest of the time.
func (p *Pipeline) runProducer() {
	defer p.wg.Done()
	defer p.crash.RecoverGoroutine()

	biasCounter := 0
	retryDeadline := time.Now().Add(primaryRetryPeriod)

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		if fo, ok := p.src.(retrier); ok && !fo.OnPrimary() && time.Now().After(retryDeadline) {
			fo.Retry()
			retryDeadline = time.Now().Add(primaryRetryPeriod)
		}

		timer := p.metrics.StartSourceReadTimer()
		chunk, err := p.src.ReadChunk()
		timer.Stop()

		if err != nil {
			p.logger.Warn("bit source read failed", "error", err)
			p.metrics.RecordError()
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(producerRetryDelay):
			}
			continue
		}

		bits := source.ExpandBytes(chunk)
		if bias := p.getBias(); bias > 0 {
			biasCounter = injectBiasContinuing(bits, bias, biasCounter)
		}
		p.metrics.RecordChunk(len(bits))

		for _, bit := range bits {
			select {
			case p.bitCh <- bit:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// injectBiasContinuing flips every (1/bias)'th bit, with the period
// counted across chunk boundaries rather than restarting at each chunk, and
// returns the counter to carry into the next call.
func injectBiasContinuing(bits []byte, bias float64, counter int) int {
	every := int(1 / bias)
	if every <= 0 {
		return counter
	}
	for i := range bits {
		if (counter+i)%every == 0 {
			bits[i] ^= 1
		}
	}
	return counter + len(bits)
}

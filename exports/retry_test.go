package exports_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/redhatinsights/deid-export-go/config"
	"github.com/redhatinsights/deid-export-go/exports"
)

var _ = Describe("RetryPolicy", func() {
	It("defaults to three attempts with exponential backoff", func() {
		p := exports.RetryPolicyFromConfig(config.Get().Retry)
		Expect(p.MaxAttempts).To(Equal(3))

		b := p.Backoff()
		Expect(b.Steps).To(Equal(3))
		Expect(b.Cap).To(Equal(10 * time.Second))
		Expect(b.Step()).To(Equal(time.Second))
		Expect(b.Step()).To(Equal(2 * time.Second))
	})

	It("runs a single attempt when none are configured", func() {
		calls := 0
		err := exports.RetryPolicy{}.Do(context.Background(), func(context.Context) error {
			calls++
			return fmt.Errorf("down")
		}, nil)
		Expect(err).To(MatchError("down"))
		Expect(calls).To(Equal(1))
	})

	It("stops at the first success", func() {
		calls := 0
		retries := []int{}
		err := fastRetry().Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 2 {
				return fmt.Errorf("flaky")
			}
			return nil
		}, func(attempt int, err error) {
			retries = append(retries, attempt)
		})
		Expect(err).To(BeNil())
		Expect(calls).To(Equal(2))
		Expect(retries).To(Equal([]int{1}))
	})

	It("returns the last error after the last attempt", func() {
		calls := 0
		retries := 0
		err := fastRetry().Do(context.Background(), func(context.Context) error {
			calls++
			return fmt.Errorf("attempt %d", calls)
		}, func(int, error) { retries++ })
		Expect(err).To(MatchError("attempt 3"))
		Expect(calls).To(Equal(3))
		Expect(retries).To(Equal(2))
	})

	It("stops retrying when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		p := exports.RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour, Multiplier: 2}
		calls := 0
		err := p.Do(ctx, func(context.Context) error {
			calls++
			cancel()
			return fmt.Errorf("down")
		}, nil)
		Expect(err).To(MatchError(context.Canceled))
		Expect(calls).To(Equal(1))
	})
})

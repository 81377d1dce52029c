// Package storagetest holds the behavior every storage.Driver must share.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/storage"
)

// NewTranscript builds a finished transcript with one text unit, a finish
// and a usage chunk.
func NewTranscript(id, provider string, started time.Time) *storage.Transcript {
	t := storage.NewTranscript(id, provider, "test-model", []chunk.Chunk{
		chunk.Text{ID: id + "-text", Text: "Hello there", Done: true},
		chunk.ToolCall{ID: id + "-tool", Index: 0, Name: "lookup", Arguments: `{"q":"go"}`, Done: true},
		chunk.Finish{ID: id + "-finish", Reason: chunk.FinishEndTurn},
		chunk.Usage{ID: id + "-usage", PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	})
	t.Prompt = "say hello"
	t.StartedAt = started.UTC()
	t.CompletedAt = started.Add(1500 * time.Millisecond).UTC()
	return t
}

// DescribeDriver registers the shared driver specs. newDriver is called
// before every spec and must return an empty store.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
		base   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Put and Get", func() {
		It("round-trips a transcript", func() {
			t := NewTranscript("t-1", "openai", base)
			Expect(driver.Put(ctx, t)).To(Succeed())

			got, err := driver.Get(ctx, "t-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("t-1"))
			Expect(got.Provider).To(Equal("openai"))
			Expect(got.Model).To(Equal("test-model"))
			Expect(got.Prompt).To(Equal("say hello"))
			Expect(got.StartedAt.Equal(t.StartedAt)).To(BeTrue())
			Expect(got.Duration()).To(Equal(1500 * time.Millisecond))
			Expect(got.Chunks).To(Equal(t.Chunks))
			Expect(got.Text()).To(Equal("Hello there"))
			Expect(got.FinishReason()).To(Equal(chunk.FinishEndTurn))
			Expect(got.Usage().TotalTokens).To(Equal(5))
		})

		It("replaces a transcript stored under the same id", func() {
			Expect(driver.Put(ctx, NewTranscript("t-1", "openai", base))).To(Succeed())

			updated := NewTranscript("t-1", "anthropic", base)
			updated.Skipped = 2
			Expect(driver.Put(ctx, updated)).To(Succeed())

			got, err := driver.Get(ctx, "t-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Provider).To(Equal("anthropic"))
			Expect(got.Skipped).To(Equal(2))

			all, err := driver.List(ctx, storage.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})

		It("rejects a transcript without an id", func() {
			Expect(driver.Put(ctx, &storage.Transcript{})).NotTo(Succeed())
		})

		It("returns NotFoundError for a missing id", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			Expect(driver.Put(ctx, NewTranscript("a", "openai", base))).To(Succeed())
			Expect(driver.Put(ctx, NewTranscript("b", "anthropic", base.Add(time.Minute)))).To(Succeed())
			Expect(driver.Put(ctx, NewTranscript("c", "openai", base.Add(2*time.Minute)))).To(Succeed())
		})

		ids := func(ts []*storage.Transcript) []string {
			out := make([]string, 0, len(ts))
			for _, t := range ts {
				out = append(out, t.ID)
			}
			return out
		}

		It("returns the newest transcripts first", func() {
			all, err := driver.List(ctx, storage.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(all)).To(Equal([]string{"c", "b", "a"}))
		})

		It("honors the limit", func() {
			all, err := driver.List(ctx, storage.ListOptions{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(all)).To(Equal([]string{"c", "b"}))
		})

		It("filters by provider", func() {
			all, err := driver.List(ctx, storage.ListOptions{Provider: "openai"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(all)).To(Equal([]string{"c", "a"}))
		})
	})

	Describe("Delete", func() {
		It("removes a stored transcript", func() {
			Expect(driver.Put(ctx, NewTranscript("t-1", "openai", base))).To(Succeed())
			Expect(driver.Delete(ctx, "t-1")).To(Succeed())

			_, err := driver.Get(ctx, "t-1")
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
		})

		It("returns NotFoundError for a missing id", func() {
			Expect(driver.Delete(ctx, "missing")).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})
	})
}

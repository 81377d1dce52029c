package transcriptscmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	transcriptscmder "github.com/papercomputeco/deltas/cmd/deltas/transcripts"
	"github.com/papercomputeco/deltas/pkg/dotdir"
	"github.com/papercomputeco/deltas/pkg/storage"
	"github.com/papercomputeco/deltas/pkg/storage/sqlite"
	"github.com/papercomputeco/deltas/pkg/storage/storagetest"
)

var _ = Describe("Transcripts command", func() {
	var (
		configDir string
		dbPath    string
		out       *bytes.Buffer
	)

	newCmd := func(args ...string) *cobra.Command {
		cmd := transcriptscmder.NewTranscriptsCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.SetOut(out)
		cmd.SetErr(GinkgoWriter)
		cmd.SetArgs(append(args, "--config-dir", configDir))
		return cmd
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		dbPath = filepath.Join(configDir, dotdir.DatabaseFile)
		out = &bytes.Buffer{}

		driver, err := sqlite.NewSQLiteDriver(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		ctx := context.Background()
		Expect(driver.Put(ctx, storagetest.NewTranscript("older", "openai", base))).To(Succeed())
		Expect(driver.Put(ctx, storagetest.NewTranscript("newer", "anthropic", base.Add(time.Minute)))).To(Succeed())
	})

	It("has the t alias", func() {
		Expect(transcriptscmder.NewTranscriptsCmd().Aliases).To(ContainElement("t"))
	})

	Describe("list", func() {
		It("lists transcripts newest first", func() {
			Expect(newCmd("list").Execute()).To(Succeed())

			s := out.String()
			Expect(s).To(ContainSubstring("newer"))
			Expect(s).To(ContainSubstring("older"))
			Expect(bytes.Index(out.Bytes(), []byte("newer"))).To(BeNumerically("<", bytes.Index(out.Bytes(), []byte("older"))))
			Expect(s).To(ContainSubstring("say hello"))
		})

		It("filters by provider", func() {
			Expect(newCmd("list", "--provider", "openai").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("older"))
			Expect(out.String()).NotTo(ContainSubstring("newer"))
		})

		It("honors --limit", func() {
			Expect(newCmd("list", "-n", "1").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("newer"))
			Expect(out.String()).NotTo(ContainSubstring("older"))
		})

		It("reports an empty store", func() {
			Expect(os.Remove(dbPath)).To(Succeed())
			Expect(newCmd("list").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No transcripts stored."))
		})

		It("fails when storage is disabled", func() {
			err := newCmd("list", "--storage", "none").Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("storage is disabled"))
		})
	})

	Describe("show", func() {
		It("prints the text, tool calls, finish and usage", func() {
			Expect(newCmd("show", "older").Execute()).To(Succeed())

			s := out.String()
			Expect(s).To(ContainSubstring("older"))
			Expect(s).To(ContainSubstring("openai"))
			Expect(s).To(ContainSubstring("Hello there"))
			Expect(s).To(ContainSubstring("lookup"))
			Expect(s).To(ContainSubstring("end_turn"))
			Expect(s).To(ContainSubstring("3 in / 2 out / 5 total"))
		})

		It("prints JSON with --json", func() {
			Expect(newCmd("show", "--json", "newer").Execute()).To(Succeed())

			var t storage.Transcript
			Expect(json.Unmarshal(out.Bytes(), &t)).To(Succeed())
			Expect(t.ID).To(Equal("newer"))
			Expect(t.Provider).To(Equal("anthropic"))
			Expect(t.Chunks).To(HaveLen(4))
		})

		It("returns a not found error for unknown ids", func() {
			err := newCmd("show", "missing").Execute()
			Expect(err).To(HaveOccurred())

			var nf storage.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(nf))
		})
	})

	Describe("delete", func() {
		It("removes the transcript", func() {
			Expect(newCmd("delete", "older").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Deleted"))

			driver, err := sqlite.NewSQLiteDriver(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer driver.Close()

			_, err = driver.Get(context.Background(), "older")
			Expect(err).To(HaveOccurred())

			ts, err := driver.List(context.Background(), storage.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ts).To(HaveLen(1))
		})

		It("fails for unknown ids", func() {
			Expect(newCmd("delete", "missing").Execute()).NotTo(Succeed())
		})
	})
})

package replaycmder_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	replaycmder "github.com/papercomputeco/deltas/cmd/deltas/replay"
	"github.com/papercomputeco/deltas/pkg/chunk"
)

const openaiBody = `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"}}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}

data: [DONE]

`

const anthropicBody = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-5","usage":{"input_tokens":7,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi there"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}

event: message_stop
data: {"type":"message_stop"}

`

func decodeEnvelopes(out []byte) []chunk.Envelope {
	var envs []chunk.Envelope
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		var env chunk.Envelope
		ExpectWithOffset(1, json.Unmarshal(scanner.Bytes(), &env)).To(Succeed())
		envs = append(envs, env)
	}
	return envs
}

var _ = Describe("Replay command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	newCmd := func(args ...string) *cobra.Command {
		cmd := replaycmder.NewReplayCmd()
		cmd.SetOut(out)
		cmd.SetErr(GinkgoWriter)
		cmd.SetArgs(args)
		return cmd
	}

	writeBody := func(name, body string) string {
		path := filepath.Join(tmpDir, name)
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	It("requires exactly one argument", func() {
		cmd := replaycmder.NewReplayCmd()
		Expect(cmd.Args(cmd, []string{})).NotTo(Succeed())
		Expect(cmd.Args(cmd, []string{"a", "b"})).NotTo(Succeed())
	})

	It("detects an OpenAI body and emits deterministic ids", func() {
		path := writeBody("openai.sse", openaiBody)
		Expect(newCmd("--json", "--seq-ids", path).Execute()).To(Succeed())

		envs := decodeEnvelopes(out.Bytes())
		Expect(envs).To(HaveLen(5))

		Expect(envs[0].Type).To(Equal(chunk.TypeText))
		Expect(envs[0].ID).To(Equal("id-1"))
		Expect(envs[0].Text).To(Equal("Hel"))
		Expect(envs[1].Text).To(Equal("Hello"))
		Expect(envs[2].Done).To(BeTrue())

		Expect(envs[3].Type).To(Equal(chunk.TypeFinish))
		Expect(envs[3].ID).To(Equal("id-2"))
		Expect(envs[3].Reason).To(Equal(chunk.FinishEndTurn))

		Expect(envs[4].Type).To(Equal(chunk.TypeUsage))
		Expect(envs[4].Usage).NotTo(BeNil())
		Expect(envs[4].Usage.TotalTokens).To(Equal(5))
	})

	It("detects an Anthropic body", func() {
		path := writeBody("anthropic.sse", anthropicBody)
		Expect(newCmd("--json", "--seq-ids", path).Execute()).To(Succeed())

		envs := decodeEnvelopes(out.Bytes())
		var text chunk.Envelope
		var reasons []chunk.FinishReason
		for _, env := range envs {
			switch env.Type {
			case chunk.TypeText:
				text = env
			case chunk.TypeFinish:
				reasons = append(reasons, env.Reason)
			}
		}
		Expect(text.Text).To(Equal("Hi there"))
		Expect(text.Done).To(BeTrue())
		Expect(reasons).To(Equal([]chunk.FinishReason{chunk.FinishEndTurn}))
	})

	It("reads the body from stdin with -", func() {
		cmd := newCmd("-p", "openai", "-")
		cmd.SetIn(strings.NewReader(openaiBody))
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Hello"))
	})

	It("rejects unknown providers", func() {
		path := writeBody("openai.sse", openaiBody)
		Expect(newCmd("-p", "nope", path).Execute()).NotTo(Succeed())
	})

	It("fails when the provider cannot be detected", func() {
		path := writeBody("empty.sse", "\n\n")
		Expect(newCmd(path).Execute()).NotTo(Succeed())
	})

	It("fails for a missing file", func() {
		err := newCmd(filepath.Join(tmpDir, "missing.sse")).Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("reading recorded stream"))
	})
})

var _ = Describe("Replay fragment size", func() {
	It("produces the same chunks when the body arrives in tiny fragments", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "openai.sse")
		Expect(os.WriteFile(path, []byte(openaiBody), 0o600)).To(Succeed())

		run := func(args ...string) []chunk.Envelope {
			var out bytes.Buffer
			cmd := replaycmder.NewReplayCmd()
			cmd.SetOut(&out)
			cmd.SetErr(GinkgoWriter)
			cmd.SetArgs(append(args, path))
			Expect(cmd.Execute()).To(Succeed())
			return decodeEnvelopes(out.Bytes())
		}

		whole := run("--json", "--seq-ids")
		split := run("--json", "--seq-ids", "--fragment-size", "3")
		Expect(split).To(Equal(whole))
	})

	It("rejects a negative fragment size", func() {
		cmd := replaycmder.NewReplayCmd()
		cmd.SetOut(GinkgoWriter)
		cmd.SetErr(GinkgoWriter)
		cmd.SetArgs([]string{"--fragment-size", "-1", "-"})
		cmd.SetIn(strings.NewReader(openaiBody))
		Expect(cmd.Execute()).NotTo(Succeed())
	})
})

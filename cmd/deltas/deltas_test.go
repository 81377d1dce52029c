package deltascmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	deltascmder "github.com/papercomputeco/deltas/cmd/deltas"
)

var _ = Describe("NewDeltasCmd", func() {
	It("registers the global flags", func() {
		cmd := deltascmder.NewDeltasCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().ShorthandLookup("d")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("log-file")).NotTo(BeNil())
	})

	It("wires every subcommand", func() {
		cmd := deltascmder.NewDeltasCmd()
		var names []string
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"stream", "chat", "replay", "transcripts",
			"config", "auth", "init", "version",
		))
	})
})

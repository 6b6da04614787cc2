package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/memstate/pkg/config"
)

func setenv(key, value string) {
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(os.Unsetenv, key)
}

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.NewDefaultConfig()))
	})

	It("reads config file values over defaults", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(`[storage]
provider = "badger"
`), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("storage.provider")).To(Equal("badger"))
		Expect(v.GetString("api.listen")).To(Equal(config.NewDefaultConfig().API.Listen))
	})

	It("env vars take precedence over config file values", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(`[storage]
provider = "badger"
`), 0o600)).To(Succeed())
		setenv("MEMSTATE_STORAGE_PROVIDER", "inmemory")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("storage.provider")).To(Equal("inmemory"))
	})

	It("splits comma separated brokers from the environment", func() {
		setenv("MEMSTATE_EVENTSTREAM_PROVIDER", "kafka")
		setenv("MEMSTATE_EVENTSTREAM_BROKERS", "k1:9092,k2:9092")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.EventStream.Brokers).To(Equal([]string{"k1:9092", "k2:9092"}))
	})

	It("fails FromViper on invalid merged values", func() {
		setenv("MEMSTATE_WORKER_NUM_WORKERS", "1000")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		_, err = config.FromViper(v)
		Expect(err).To(MatchError(ContainSubstring("worker.num_workers")))
	})
})

var _ = Describe("Flag registry", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("binds a set flag over config and env", func() {
		setenv("MEMSTATE_API_LISTEN", ":6666")
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagListen})
		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to the config file when the flag is not set", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api]\nlisten = \":5555\"\n"), 0o600)).To(Succeed())
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagListen, "nonexistent"})
		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("pulls name, shorthand, description and default from the registry", func() {
		cmd := &cobra.Command{Use: "test"}
		var listen string
		var dims uint
		var budget int
		config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)
		config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &dims)
		config.AddIntFlag(cmd, config.Flags, config.FlagBudget, &budget)

		f := cmd.Flags().Lookup("listen")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("l"))
		Expect(f.DefValue).To(Equal(config.NewDefaultConfig().API.Listen))

		Expect(cmd.Flags().Lookup("embedding-dimensions").DefValue).To(Equal("768"))
		Expect(cmd.Flags().Lookup("budget").DefValue).To(Equal("4000"))
	})

	It("ignores unknown registry keys", func() {
		cmd := &cobra.Command{Use: "test"}
		var s string
		config.AddStringFlag(cmd, config.Flags, "nonexistent", &s)
		Expect(cmd.Flags().HasFlags()).To(BeFalse())
	})

	It("maps every registry entry to a valid config key", func() {
		for key, f := range config.Flags {
			Expect(config.IsValidConfigKey(f.ViperKey)).To(BeTrue(), key)
		}
	})
})

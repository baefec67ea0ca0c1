package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/splice/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	writeConfig := func(data string) {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
	}

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads all config fields", func() {
			writeConfig(`version = 0

[proxy]
listen = ":9090"
upstream = "http://app.internal:8000"

[inject]
location = "body"
policy = "every"
script = "console.log('hi')"
script_file = "/etc/splice/boot.js"
nonce = "r4nd0m"
chunk_size = 4096
overflow_limit = 65536

[events]
enabled = true
brokers = "kafka-1:9092,kafka-2:9092"
topic = "injections"
`)

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Proxy.Listen).To(Equal(":9090"))
			Expect(cfg.Proxy.Upstream).To(Equal("http://app.internal:8000"))
			Expect(cfg.Inject.Location).To(Equal("body"))
			Expect(cfg.Inject.Policy).To(Equal("every"))
			Expect(cfg.Inject.Script).To(Equal("console.log('hi')"))
			Expect(cfg.Inject.ScriptFile).To(Equal("/etc/splice/boot.js"))
			Expect(cfg.Inject.Nonce).To(Equal("r4nd0m"))
			Expect(cfg.Inject.ChunkSize).To(Equal(uint(4096)))
			Expect(cfg.Inject.OverflowLimit).To(Equal(uint(65536)))
			Expect(cfg.Events.Enabled).To(BeTrue())
			Expect(cfg.Events.Brokers).To(Equal("kafka-1:9092,kafka-2:9092"))
			Expect(cfg.Events.Topic).To(Equal("injections"))
		})

		It("fills unset fields with defaults", func() {
			writeConfig(`[inject]
policy = "every"
`)

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Inject.Policy).To(Equal("every"))
			Expect(cfg.Inject.Location).To(Equal(defaults.Inject.Location))
			Expect(cfg.Inject.ChunkSize).To(Equal(defaults.Inject.ChunkSize))
			Expect(cfg.Proxy.Listen).To(Equal(defaults.Proxy.Listen))
			Expect(cfg.Events.Topic).To(Equal(defaults.Events.Topic))
		})

		It("returns error for malformed TOML", func() {
			writeConfig("[proxy\nlisten = ")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parsing config TOML"))
		})

		It("returns error for unsupported config version", func() {
			writeConfig("version = 7\n")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported config version 7"))
		})
	})

	Describe("SaveConfig", func() {
		It("persists config to disk", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Inject.Script = "boot()"
			cfg.Events.Enabled = true
			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Inject.Script).To(Equal("boot()"))
			Expect(loaded.Events.Enabled).To(BeTrue())
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SaveConfig(nil)).To(MatchError("cannot save nil config"))
		})

		It("returns ErrNoConfigDir when no directory was resolved", func() {
			origHome := os.Getenv("HOME")
			Expect(os.Setenv("HOME", filepath.Join(tmpDir, "home"))).To(Succeed())
			DeferCleanup(func() { _ = os.Setenv("HOME", origHome) })

			origDir, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Chdir(tmpDir)).To(Succeed())
			DeferCleanup(func() { _ = os.Chdir(origDir) })

			c, err := config.NewConfiger("")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.GetTarget()).To(BeEmpty())

			Expect(c.SaveConfig(config.NewDefaultConfig())).To(MatchError(config.ErrNoConfigDir))
		})
	})

	Describe("SetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("sets a string config key", func() {
			Expect(c.SetConfigValue("proxy.upstream", "http://localhost:5173")).To(Succeed())

			v, err := c.GetConfigValue("proxy.upstream")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("http://localhost:5173"))
		})

		It("sets a uint config key", func() {
			Expect(c.SetConfigValue("inject.overflow_limit", "1024")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Inject.OverflowLimit).To(Equal(uint(1024)))
		})

		It("sets a bool config key", func() {
			Expect(c.SetConfigValue("events.enabled", "true")).To(Succeed())

			v, err := c.GetConfigValue("events.enabled")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("true"))
		})

		DescribeTable("rejects invalid values",
			func(key, value, msg string) {
				err := c.SetConfigValue(key, value)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring(msg))
			},
			Entry("unknown key", "proxy.nope", "x", "unknown config key"),
			Entry("bad location", "inject.location", "footer", "expected head or body"),
			Entry("bad policy", "inject.policy", "sometimes", "expected first or every"),
			Entry("bad uint", "inject.chunk_size", "-1", "invalid value for inject.chunk_size"),
			Entry("bad bool", "events.enabled", "maybe", "invalid value for events.enabled"),
		)

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("inject.script", "boot()")).To(Succeed())
			Expect(c.SetConfigValue("inject.location", "body")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Inject.Script).To(Equal("boot()"))
			Expect(cfg.Inject.Location).To(Equal("body"))
		})
	})

	Describe("GetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns default value when no config file exists", func() {
			v, err := c.GetConfigValue("inject.policy")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("first"))
		})

		It("returns empty string for key with no default", func() {
			v, err := c.GetConfigValue("inject.nonce")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeEmpty())

			v, err = c.GetConfigValue("inject.overflow_limit")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeEmpty())
		})

		It("gets a uint config value as string", func() {
			v, err := c.GetConfigValue("inject.chunk_size")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("32768"))
		})

		It("returns error for unknown key", func() {
			_, err := c.GetConfigValue("api.listen")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})
	})

	Describe("ValidConfigKeys", func() {
		It("returns all keys in section order", func() {
			keys := config.ValidConfigKeys()
			Expect(keys).To(HaveLen(12))
			Expect(keys[0]).To(Equal("proxy.listen"))
			Expect(keys[len(keys)-1]).To(Equal("events.topic"))
			for _, k := range keys {
				Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
			}
			Expect(config.IsValidConfigKey("proxy.provider")).To(BeFalse())
		})
	})
})

var _ = Describe("Viper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tmpDir) })
	})

	It("applies defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("proxy.listen")).To(Equal(":8080"))
		Expect(v.GetString("inject.policy")).To(Equal("first"))
		Expect(v.GetUint("inject.chunk_size")).To(Equal(uint(32768)))
		Expect(v.GetBool("events.enabled")).To(BeFalse())
	})

	It("reads config.toml and lets SPLICE_ env vars override it", func() {
		data := "[proxy]\nupstream = \"http://from-file:1\"\nlisten = \":7070\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		origEnv, had := os.LookupEnv("SPLICE_PROXY_UPSTREAM")
		Expect(os.Setenv("SPLICE_PROXY_UPSTREAM", "http://from-env:2")).To(Succeed())
		DeferCleanup(func() {
			if had {
				_ = os.Setenv("SPLICE_PROXY_UPSTREAM", origEnv)
			} else {
				_ = os.Unsetenv("SPLICE_PROXY_UPSTREAM")
			}
		})

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("proxy.upstream")).To(Equal("http://from-env:2"))
		Expect(v.GetString("proxy.listen")).To(Equal(":7070"))
	})

	It("gives bound flags the highest precedence", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		var (
			upstream string
			limit    uint
			events   bool
		)
		cmd := &cobra.Command{Use: "test"}
		config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &upstream)
		config.AddUintFlag(cmd, config.Flags, config.FlagOverflowLimit, &limit)
		config.AddBoolFlag(cmd, config.Flags, config.FlagEvents, &events)

		Expect(cmd.Flags().Lookup("upstream").Shorthand).To(Equal("u"))
		Expect(cmd.Flags().Lookup("upstream").DefValue).To(Equal("http://localhost:3000"))

		Expect(cmd.Flags().Parse([]string{"--upstream", "http://flag:3", "--overflow-limit", "99", "--events"})).To(Succeed())
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{
			config.FlagUpstream,
			config.FlagOverflowLimit,
			config.FlagEvents,
			config.FlagListen,
		})

		Expect(v.GetString("proxy.upstream")).To(Equal("http://flag:3"))
		Expect(v.GetUint("inject.overflow_limit")).To(Equal(uint(99)))
		Expect(v.GetBool("events.enabled")).To(BeTrue())
		Expect(v.GetString("proxy.listen")).To(Equal(":8080"))
	})

	It("ignores unknown registry keys", func() {
		var s string
		cmd := &cobra.Command{Use: "test"}
		config.AddStringFlag(cmd, config.Flags, "does-not-exist", &s)
		Expect(cmd.Flags().HasFlags()).To(BeFalse())
	})
})

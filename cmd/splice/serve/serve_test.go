package servecmder

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/splice/pkg/logger"
	"github.com/papercomputeco/splice/pkg/script"
)

var _ = Describe("serve flag resolution", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "splice-serve-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tmpDir) })

		data := "[proxy]\nupstream = \"http://from-file:3000\"\nlisten = \":7000\"\n\n[inject]\nlocation = \"body\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		GinkgoT().Setenv("SPLICE_INJECT_POLICY", "every")
	})

	resolve := func(args ...string) *serveCommander {
		cmder, cmd := newServeCommander()
		cmd.Flags().String("config-dir", tmpDir, "")
		Expect(cmd.ParseFlags(args)).To(Succeed())
		Expect(cmd.PreRunE(cmd, nil)).To(Succeed())
		return cmder
	}

	It("layers flags over env over config file over defaults", func() {
		cmder := resolve("--listen", ":9999")

		Expect(cmder.listen).To(Equal(":9999"))
		Expect(cmder.upstream).To(Equal("http://from-file:3000"))
		Expect(cmder.location).To(Equal("body"))
		Expect(cmder.policy).To(Equal("every"))
		Expect(cmder.chunkSize).To(Equal(uint(32 * 1024)))
		Expect(cmder.events).To(BeFalse())
		Expect(cmder.kafkaTopic).To(Equal("splice.injections"))
	})

	It("lets flags override environment variables", func() {
		cmder := resolve("--policy", "first", "--events", "--overflow-limit", "4096")

		Expect(cmder.policy).To(Equal("first"))
		Expect(cmder.events).To(BeTrue())
		Expect(cmder.overflowLimit).To(Equal(uint(4096)))
	})
})

var _ = Describe("serveCommander.run", func() {
	var (
		upstream *httptest.Server
		listener net.Listener
		cmder    *serveCommander
	)

	BeforeEach(func() {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><head></head><body></body></html>")
		}))
		DeferCleanup(upstream.Close)

		var err error
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = listener.Close() })

		cmder = &serveCommander{
			upstream:  upstream.URL,
			location:  "head",
			policy:    "first",
			script:    "boot()",
			chunkSize: 8,
			listener:  listener,
			logger:    logger.Nop(),
		}
	})

	get := func() string {
		resp, err := http.Get("http://" + listener.Addr().String() + "/")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return string(body)
	}

	start := func() (context.CancelFunc, chan error) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- cmder.run(ctx) }()
		return cancel, done
	}

	It("serves injected documents until the context is cancelled", func() {
		cancel, done := start()

		Eventually(get).Should(Equal("<html><head><script>boot()</script></head><body></body></html>"))

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})

	It("reloads the script file while serving", func() {
		path := filepath.Join(GinkgoT().TempDir(), "boot.js")
		Expect(os.WriteFile(path, []byte("v1()"), 0o600)).To(Succeed())
		cmder.scriptFile = path

		cancel, done := start()
		DeferCleanup(func() {
			cancel()
			Eventually(done, 5*time.Second).Should(Receive(BeNil()))
		})

		Eventually(get).Should(ContainSubstring("<script>v1()</script>"))

		Expect(os.WriteFile(path, []byte("v2()"), 0o600)).To(Succeed())
		Eventually(get, 5*time.Second, 50*time.Millisecond).Should(ContainSubstring("<script>v2()</script>"))
	})

	It("rejects an invalid location", func() {
		cmder.location = "footer"
		Expect(cmder.run(context.Background())).To(MatchError(ContainSubstring("invalid location")))
	})

	It("rejects an invalid policy", func() {
		cmder.policy = "sometimes"
		Expect(cmder.run(context.Background())).To(MatchError(ContainSubstring("invalid policy")))
	})

	It("requires a script", func() {
		cmder.script = ""
		Expect(cmder.run(context.Background())).To(MatchError(script.ErrNoSource))
	})

	It("requires kafka settings when events are enabled", func() {
		cmder.events = true
		cmder.kafkaBrokers = ""
		Expect(cmder.run(context.Background())).To(MatchError(ContainSubstring("creating kafka publisher")))
	})
})

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aerth/dojod/config"
	"github.com/aerth/dojod/logging"
	"github.com/aerth/dojod/store"
	"github.com/aerth/dojod/system"
	"github.com/gorilla/securecookie"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

var info = "dojod, the NL DOJO marketing site"
var logo = "" +
	"     __        _           __\n" +
	" ___/ /__    (_)__  ___/ /\n" +
	"/ _  / _ \\  / / _ \\/ _  /   " + info + "\n" +
	"\\_,_/\\___/_/ /\\___/\\_,_/\n" +
	"        |___/\n\n"

const DefaultListenAddr = "127.0.0.1:8080"
const DefaultListenAddrTLS = "127.0.0.1:1443"

func main() {
	// defaults
	var (
		devmode     = false
		addr        = DefaultListenAddr
		configpath  = "config.json"
		sslCert     = ""
		sslKey      = ""
		sslAddr     = DefaultListenAddrTLS
		showVersion = false
	)

	// flags
	flag.StringVar(&addr, "addr", addr, "address to serve")
	flag.BoolVar(&devmode, "dev", devmode, "development mode (insecure)")
	flag.StringVar(&configpath, "conf", configpath, "path to config.json (use - for stdin)")
	flag.StringVar(&sslCert, "sslcert", sslCert, "path to ssl cert")
	flag.StringVar(&sslKey, "sslkey", sslKey, "path to ssl key")
	flag.StringVar(&sslAddr, "ssladdr", sslAddr, "listen TLS if cert and key exist")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")
	doConfigDump := flag.Bool("dumpconfig", false, "dump config and exit")
	doMessageDump := flag.Bool("dumpmessages", false, "dump stored contact messages as JSON and exit")
	doGenKeys := flag.Bool("genkeys", false, "print new random Security keys as JSON and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("dojod", Version)
		return
	}
	if *doGenKeys {
		if err := genKeys(); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if !*doConfigDump && !*doMessageDump {
		fmt.Fprint(os.Stderr, logo)
	}

	// .env is optional
	_ = godotenv.Load()

	// read config file or stdin
	cfg, err := config.Load(configpath, os.Stdin)
	if err != nil {
		log.Fatalln("error reading config:", err)
	}
	cfg.Meta.Version = "dojod " + Version

	// override config with flag
	if devmode {
		cfg.Meta.DevelopmentMode = devmode
	}
	if addr != DefaultListenAddr || cfg.Meta.ListenAddr == "" {
		cfg.Meta.ListenAddr = addr
	}
	if sslAddr != DefaultListenAddrTLS || cfg.Meta.ListenAddrTLS == "" {
		cfg.Meta.ListenAddrTLS = sslAddr
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Meta.DevelopmentMode)
	if err != nil {
		log.Fatalln("error building logger:", err)
	}
	defer logger.Sync()
	logger.Info("starting", zap.String("version", cfg.Meta.Version), zap.String("config", cfg.ConfigFilePath))

	if err := config.CheckConfig(cfg, logger); err != nil {
		logger.Fatal("bad config", zap.Error(err))
	}

	if *doConfigDump {
		if err := cfg.Dump(os.Stdout); err != nil {
			logger.Fatal("dumping config", zap.Error(err))
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		Type:         cfg.Database.Type,
		DSN:          cfg.Database.DSN,
		Name:         cfg.Database.Name,
		Migrate:      cfg.Database.Migrate,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}, logger)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	if *doMessageDump {
		if err := dumpMessages(ctx, st); err != nil {
			logger.Error("dumping messages", zap.Error(err))
		}
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s, err := system.New(*cfg, st, logger, reg)
	if err != nil {
		logger.Fatal("boot error", zap.Error(err))
	}
	if sslCert != "" && sslKey != "" {
		s.SetTLS(sslCert, sslKey)
	}
	go s.WatchSignals(ctx.Done())

	if err := s.Run(ctx, s.Router()); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return
	}
	logger.Info("bye")
}

func dumpMessages(ctx context.Context, st store.Store) error {
	msgs, err := st.ContactMessages(ctx)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []store.ContactMessage{}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent(" ", " ")
	return enc.Encode(msgs)
}

// genKeys prints a Security section with fresh keys. The keys are hex, so
// the 32 byte keys come from 16 random bytes.
func genKeys() error {
	key := func(n int) (string, error) {
		b := securecookie.GenerateRandomKey(n)
		if b == nil {
			return "", fmt.Errorf("could not read %d random bytes", n)
		}
		return hex.EncodeToString(b), nil
	}
	keys := map[string]string{}
	for _, name := range []string{"hash-key", "block-key", "csrf-key"} {
		k, err := key(16)
		if err != nil {
			return err
		}
		keys[name] = k
	}
	keys["cookie-name"] = "dojod"
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent(" ", " ")
	return enc.Encode(map[string]interface{}{"Security": keys})
}

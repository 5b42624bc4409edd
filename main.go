// Command vigil is the sensor hub daemon. It discovers I2C wellness sensors
// on the hat bus, polls them on a fixed cadence, fans readings out to the
// store, the alert rules and the live feeds, and serves the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/anomaly"
	"github.com/vigil-care/vigil/internal/api"
	"github.com/vigil-care/vigil/internal/config"
	"github.com/vigil-care/vigil/internal/feed"
	"github.com/vigil-care/vigil/internal/hub"
	"github.com/vigil-care/vigil/internal/i2cbus"
	"github.com/vigil-care/vigil/internal/monitoring"
	"github.com/vigil-care/vigil/internal/notify"
	"github.com/vigil-care/vigil/internal/sensors"
	"github.com/vigil-care/vigil/internal/simbus"
	"github.com/vigil-care/vigil/internal/store"
	"github.com/vigil-care/vigil/internal/timeutil"
	"github.com/vigil-care/vigil/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to settings JSON (defaults apply when empty)")
	demoMode    = flag.Bool("demo", false, "Run against a simulated sensor bus")
	listenFlag  = flag.String("listen", "", "HTTP listen address (overrides settings)")
	dbFlag      = flag.String("db", "", "Database path (overrides settings)")
	noFeed      = flag.Bool("no-feed", false, "Disable the MQTT feed even if enabled in settings")
	noSMS       = flag.Bool("no-sms", false, "Disable SMS notifications even if enabled in settings")
	debugLog    = flag.Bool("debug", false, "Enable diagnostic logging")
	traceLog    = flag.Bool("trace", false, "Enable per-cycle trace logging (implies -debug)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// medicationCheckInterval is how often the reminder scheduler compares the
// clock against the configured times. Must stay under a minute or a reminder
// window could be skipped entirely.
const medicationCheckInterval = 30 * time.Second

func main() {
	// `vigil migrate <action>` manages the schema by hand and exits before
	// any of the daemon flags apply.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		migrateDB := fs.String("db", "vigil.db", "Path to the database")
		fs.Parse(os.Args[2:])
		store.RunMigrateCommand(fs.Args(), *migrateDB)
		return
	}

	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Ops logging is always on. -debug adds diagnostics, -trace adds
	// per-cycle bus telemetry on top.
	var diagW, traceW io.Writer
	if *debugLog || *traceLog {
		diagW = os.Stderr
	}
	if *traceLog {
		traceW = os.Stderr
	}
	monitoring.SetLogWriters(os.Stderr, diagW, traceW)

	settings := config.EmptySettings()
	if *configPath != "" {
		var err error
		settings, err = config.LoadSettings(*configPath)
		if err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
	}

	listen := *listenFlag
	if listen == "" {
		listen = settings.GetHTTPListen()
	}
	dbPath := *dbFlag
	if dbPath == "" {
		dbPath = settings.GetDBPath()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing bus is fatal for the sensor subsystem only. The API, the
	// store and the clock-driven alerts keep running without it.
	var bus i2cbus.Bus
	sensorsUp := true
	if *demoMode {
		bus = simbus.New()
		log.Printf("demo mode: polling a simulated sensor bus")
	} else {
		real, err := i2cbus.Open(settings.GetBusName(), settings.GetBusTimeout())
		if err != nil {
			log.Printf("i2c bus unavailable, continuing without sensors: %v", err)
			bus = i2cbus.NewUnavailable(err)
			sensorsUp = false
		} else {
			bus = real
		}
	}
	defer bus.Close()

	db, err := store.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	router := hub.NewRouter()
	scanner := sensors.NewScanner(bus)
	h := hub.New(scanner, router)

	// Consumers see every reading in registration order: persistence first,
	// then the alert evaluators, then the live feeds.
	router.Register(db)
	router.RegisterAlertSink(db)

	eval := alerts.NewEvaluator(alerts.RulesFromSettings(settings.GetRules()), router.EmitAlert)
	router.Register(eval)

	var watchdog *alerts.Watchdog
	if settings.GetInactivityEnabled() {
		watchdog = alerts.NewWatchdog(settings.GetInactivityThreshold(), settings.GetInactivityCheckInterval(), timeutil.RealClock{}, router.EmitAlert)
		router.Register(watchdog)
		watchdog.Start()
	}

	var detector *anomaly.Detector
	if settings.GetAnomalyEnabled() {
		detector = anomaly.New(anomaly.Config{
			Metrics:    settings.GetAnomalyMetrics(),
			Sigma:      settings.GetAnomalySigma(),
			Window:     settings.GetAnomalyWindow(),
			MinSamples: settings.GetAnomalyMinSamples(),
		}, router.EmitAlert)
		router.Register(detector)
	}

	var publisher *feed.Publisher
	if settings.GetMQTTEnabled() && !*noFeed {
		if settings.GetMQTTEmbedded() {
			broker, err := feed.NewBroker(settings.GetMQTTEmbeddedListen())
			if err != nil {
				log.Fatalf("Failed to start embedded MQTT broker: %v", err)
			}
			defer broker.Close()
		}
		publisher = feed.NewPublisher(settings.GetMQTTBroker(), settings.GetMQTTTopicPrefix())
		if err := publisher.Start(ctx); err != nil {
			log.Printf("MQTT feed unavailable: %v", err)
			publisher = nil
		} else {
			router.Register(publisher)
			router.RegisterAlertSink(publisher)
		}
	}

	if settings.GetSMSEnabled() && !*noSMS {
		notifier, err := notify.Open(settings.GetSMSPort(), settings.GetSMSBaud(), settings.EmergencyContacts)
		if err != nil {
			log.Printf("SMS notifier unavailable: %v", err)
		} else {
			defer notifier.Close()
			router.RegisterAlertSink(notifier)
		}
	}

	var sched *alerts.Scheduler
	if len(settings.MedicationTimes) > 0 {
		sched, err = alerts.NewScheduler(settings.MedicationTimes, medicationCheckInterval, timeutil.RealClock{}, router.EmitAlert)
		if err != nil {
			log.Fatalf("Invalid medication schedule: %v", err)
		}
		sched.Start()
	}

	var worker *hub.Worker
	if sensorsUp {
		worker = hub.NewWorker(h, settings.GetPollInterval(), settings.GetRefreshInterval())
		worker.Start()
	}

	maint := store.NewMaintenanceWorker(db, settings.GetRetentionDays())
	maint.Start()

	srv := api.NewServer(h, db, eval, detector)
	srv.Start()

	var wg sync.WaitGroup

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := srv.ServeMux()
		h.AttachAdminRoutes(mux)
		db.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	// Producers stop before consumers so nothing publishes into a closing
	// router.
	if worker != nil {
		worker.Stop()
	}
	maint.Stop()
	if sched != nil {
		sched.Stop()
	}
	if watchdog != nil {
		watchdog.Stop()
	}
	srv.Stop()
	if publisher != nil {
		publisher.Stop()
	}
	router.Close()

	log.Printf("Graceful shutdown complete")
}

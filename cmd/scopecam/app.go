package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/scopecam/internal/acquisition"
	"github.com/banshee-data/scopecam/internal/api"
	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/camera/v4l2"
	"github.com/banshee-data/scopecam/internal/config"
	"github.com/banshee-data/scopecam/internal/db"
	"github.com/banshee-data/scopecam/internal/devicelink"
	"github.com/banshee-data/scopecam/internal/fsutil"
	"github.com/banshee-data/scopecam/internal/pipeline"
	"github.com/banshee-data/scopecam/internal/preview"
	"github.com/banshee-data/scopecam/internal/recorder"
	"github.com/banshee-data/scopecam/internal/scope"
	"github.com/banshee-data/scopecam/internal/timeutil"
	"github.com/banshee-data/scopecam/internal/version"
)

// commandHistorySize is how many exchanges the debug console keeps in memory.
const commandHistorySize = 200

// appOptions are the command-line overrides layered on the config file.
type appOptions struct {
	Dev      bool
	Serial   string
	Camera   string
	VideoDir string
	DBPath   string
}

// app is the wired system: controller link, camera, pipeline, recording,
// catalogue and the HTTP surface.
type app struct {
	cfg     *config.ScopeConfig
	link    *devicelink.Link
	emu     *devicelink.Emulator
	scope   *scope.Controller
	source  *camera.Source
	pipe    *pipeline.Pipeline
	acq     *acquisition.Manager
	catalog *db.DB
	preview *preview.Broadcaster
	mux     *http.ServeMux
}

func openLink(cfg *config.ScopeConfig, opts appOptions, observer func(devicelink.CommandRecord)) (*devicelink.Link, *devicelink.Emulator, error) {
	var (
		port devicelink.SerialPorter
		emu  *devicelink.Emulator
	)
	if opts.Dev {
		var p *devicelink.TestableSerialPort
		p, emu = devicelink.NewEmulatedPort(cfg.GetDeviceIdentity())
		port = p
	} else {
		path := cfg.GetSerialPort()
		if opts.Serial != "" {
			path = opts.Serial
		}
		var err error
		port, err = devicelink.OpenSerial(path, devicelink.PortOptions{
			BaudRate:    cfg.GetBaudRate(),
			ReadTimeout: cfg.GetReadTimeout(),
		})
		if err != nil {
			return nil, nil, err
		}
	}
	link, err := devicelink.New(port, devicelink.LinkOptions{
		Identity: cfg.GetDeviceIdentity(),
		Observer: observer,
	})
	if err != nil {
		return nil, nil, err
	}
	return link, emu, nil
}

func openCamera(cfg *config.ScopeConfig, opts appOptions) (camera.Device, error) {
	if opts.Dev {
		dev := camera.NewSyntheticDevice(cfg.GetFrameWidth(), cfg.GetFrameHeight(), float64(cfg.GetFrameRate()))
		dev.Clock = timeutil.RealClock{}
		return dev, nil
	}
	path := cfg.GetCameraDevice()
	if opts.Camera != "" {
		path = opts.Camera
	}
	return v4l2.Open(v4l2.Options{
		Path:   path,
		Width:  cfg.GetFrameWidth(),
		Height: cfg.GetFrameHeight(),
		FPS:    cfg.GetFrameRate(),
	})
}

func newApp(cfg *config.ScopeConfig, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()

	dbPath := cfg.GetDatabasePath()
	if opts.DBPath != "" {
		dbPath = opts.DBPath
	}
	if a.catalog, err = db.NewDB(dbPath); err != nil {
		return a, fmt.Errorf("open catalogue %s: %w", dbPath, err)
	}

	history := devicelink.NewHistory(commandHistorySize)
	persist := a.catalog.CommandObserver()
	observe := func(rec devicelink.CommandRecord) {
		history.Record(rec)
		persist(rec)
	}
	if a.link, a.emu, err = openLink(cfg, opts, observe); err != nil {
		return a, fmt.Errorf("connect controller: %w", err)
	}
	logf("connected to %s", a.link.Identity())

	a.scope = scope.NewController(a.link, scope.Options{
		SettleTime: cfg.GetLimitSettleTime(),
		Steps: scope.StepSizes{
			LensBig:    cfg.GetLensBigStep(),
			LensSmall:  cfg.GetLensSmallStep(),
			MotorBig:   cfg.GetMotorBigStep(),
			MotorSmall: cfg.GetMotorSmallStep(),
		},
	})
	if pos, qerr := a.scope.QueryFocus(); qerr != nil {
		logf("initial focus query failed: %v", qerr)
	} else {
		logf("lens at %d", pos)
	}

	dev, err := openCamera(cfg, opts)
	if err != nil {
		return a, err
	}
	a.source, err = camera.NewSource(dev, camera.SourceOptions{
		QueueCapacity: cfg.GetFrameQueueCapacity(),
		Limits: camera.Limits{
			MinExposureMs: cfg.GetMinExposureMs(),
			MaxExposureMs: cfg.GetMaxExposureMs(),
			MinGainDB:     cfg.GetMinGainDB(),
			MaxGainDB:     cfg.GetMaxGainDB(),
		},
		Parameters: camera.Parameters{
			AutoExposure:     cfg.GetAutoExposure(),
			AutoGain:         cfg.GetAutoGain(),
			ExposureMs:       cfg.GetExposureMs(),
			GainDB:           cfg.GetGainDB(),
			Binning:          cfg.GetBinning(),
			CropROI:          cfg.GetCropROI(),
			MedianFilterSize: cfg.GetMedianFilterSize(),
		},
		OnReadError: func(err *camera.CaptureReadError) { logf("camera: %v", err) },
	})
	if err != nil {
		dev.Close()
		return a, fmt.Errorf("camera: %w", err)
	}

	a.preview = preview.NewBroadcaster(preview.Options{
		MaxWidth:  cfg.GetPreviewMaxWidth(),
		MaxHeight: cfg.GetPreviewMaxHeight(),
		Quality:   cfg.GetJPEGQuality(),
	})
	a.pipe = pipeline.New(a.source, pipeline.Options{
		PollInterval:    cfg.GetPollInterval(),
		DisplayInterval: cfg.GetDisplayInterval(),
		FilterSize:      cfg.GetMedianFilterSize(),
		Sink:            a.preview,
		OnOverflow:      func(err error) { logf("recording: %v", err) },
	})

	videoDir := cfg.GetVideoDir()
	if opts.VideoDir != "" {
		videoDir = opts.VideoDir
	}
	a.acq = acquisition.NewManager(acquisition.Options{
		Source:   a.source,
		Pipeline: a.pipe,
		Session: recorder.SessionOptions{
			Dir:           videoDir,
			Prefix:        cfg.GetVideoPrefix(),
			Ext:           cfg.GetVideoExtension(),
			FS:            fsutil.OSFileSystem{},
			QueueCapacity: cfg.GetSaveQueueCapacity(),
			JPEGQuality:   cfg.GetJPEGQuality(),
			Factory:       recorder.NewMJPEGWriter,
		},
		Catalogue: a.catalog,
		Sink:      a.preview,
	})

	a.mux = api.NewServer(api.Options{
		Acquisition: a.acq,
		Scope:       a.scope,
		Catalogue:   a.catalog,
		Preview:     a.preview,
		Frames:      a.pipe,
	}).ServeMux()

	a.link.AttachAdminRoutes(a.mux, history)
	if err := a.catalog.AttachAdminRoutes(a.mux); err != nil {
		return a, err
	}
	debug := tsweb.Debugger(a.mux)
	debug.KV("Version", version.String())
	debug.KV("Controller", a.link.Identity())
	debug.KVFunc("Acquisition", func() any { return a.acq.Status().State })
	debug.KVFunc("Frames captured", func() any { return a.source.Stats().Captured })

	return a, nil
}

// Handler is the root HTTP handler with request logging.
func (a *app) Handler() http.Handler {
	return api.LoggingMiddleware(a.mux)
}

// Close stops streaming, finishes any recording and releases the devices in
// that order. Safe on a partially built app.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.acq != nil {
		if err := a.acq.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop acquisition: %w", err))
		}
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close camera: %w", err))
		}
	}
	if a.link != nil {
		if err := a.link.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close controller link: %w", err))
		}
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalogue: %w", err))
		}
	}
	return errors.Join(errs...)
}

// shutdownTimeout bounds the HTTP drain and the final recording flush.
const shutdownTimeout = 5 * time.Second

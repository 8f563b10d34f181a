// Command tockkernel is board bring-up: it wires the Kernel, the
// host-simulated Chip, the round-robin scheduler, the credential checker,
// a handful of example capsules and demo processes, the syscall handler,
// the main loop, and the admin introspection API together, then runs
// until an OS signal arrives — the same errgroup + signal.NotifyContext
// shape the pack's gitserver command uses to orchestrate its own
// long-running goroutines.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edirooss/tock-kernel/internal/adminapi"
	"github.com/edirooss/tock-kernel/internal/capsule/alarm"
	"github.com/edirooss/tock-kernel/internal/capsule/console"
	"github.com/edirooss/tock-kernel/internal/config"
	"github.com/edirooss/tock-kernel/internal/credcheck"
	"github.com/edirooss/tock-kernel/internal/dispatcher"
	"github.com/edirooss/tock-kernel/internal/driverlookup"
	"github.com/edirooss/tock-kernel/internal/kernel"
	"github.com/edirooss/tock-kernel/internal/logging"
	"github.com/edirooss/tock-kernel/internal/mainloop"
	"github.com/edirooss/tock-kernel/internal/process"
	"github.com/edirooss/tock-kernel/internal/scheduler"
	"github.com/edirooss/tock-kernel/internal/simchip"
	"github.com/edirooss/tock-kernel/internal/syscallapi"
	"github.com/edirooss/tock-kernel/internal/watchdog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Driver numbers, fixed by this board's capsule layout.
const (
	driverAlarm   uint32 = 0
	driverConsole uint32 = 1
)

func main() {
	cfg := config.FromEnv()
	log := logging.New(cfg.Env != "dev")
	defer log.Sync()
	log = log.Named("main")

	if err := run(cfg, log); err != nil {
		log.Fatal("tockkernel exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	k := kernel.New(log, cfg.ProcessSlots)
	c := simchip.New()
	sched := scheduler.NewRoundRobin(k)

	drivers := driverlookup.New()
	alarmCap := alarm.New(driverAlarm, log, c, sched)
	consoleCap := console.New(driverConsole, log)
	drivers.Register(driverAlarm, alarmCap)
	drivers.Register(driverConsole, consoleCap)

	handler := syscallapi.New(drivers, syscallapi.AllowAllFilter{}, syscallapi.NullMemopHandler{}, log)

	pids := loadDemoProcesses(k, alarmCap)

	policy, err := buildPolicy(cfg, log)
	if err != nil {
		return fmt.Errorf("build credential policy: %w", err)
	}
	credcheck.New(log, k, policy, kernel.NewExternalProcessCapability()).Run(context.Background())

	for _, pid := range pids {
		p, ok := k.GetProcess(pid)
		if !ok {
			continue
		}
		if p.State().Schedulable() {
			sched.Enqueue(pid)
		}
	}

	loop := mainloop.New(mainloop.Deps{
		Kernel:  k,
		Chip:    c,
		Sched:   sched,
		Requeue: sched,
		Dispatch: dispatcher.Deps{
			Kernel:  k,
			Chip:    c,
			Sched:   sched,
			Fault:   faultLogger{log: log},
			Syscall: handler,
			Cap:     kernel.NewExternalProcessCapability(),
			Log:     log,
		},
		WatchDog: watchdog.NewTicking(),
		Log:      log,
		NoSleep:  cfg.NoSleep,
	})

	admin, err := adminapi.New(log, k, adminapi.Options{
		Addr:          cfg.AdminAddr,
		Env:           cfg.Env,
		RedisAddr:     cfg.RedisAddr,
		SessionSecret: cfg.SessionSecret,
		AdminUser:     cfg.AdminUser,
		AdminPass:     cfg.AdminPass,
	})
	if err != nil {
		return fmt.Errorf("build admin api: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("main loop: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("admin api listening", zap.String("addr", cfg.AdminAddr))
		return admin.Run(gctx)
	})

	return g.Wait()
}

// buildPolicy selects the credential-checking policy: a Redis-backed
// allowlist when the board requires signed processes, or an accept-all
// policy for local development.
func buildPolicy(cfg config.Config, log *zap.Logger) (credcheck.Policy, error) {
	if !cfg.RequireCreds {
		return credcheck.NewAcceptAllPolicy(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return credcheck.NewRedisPolicy(log, rdb, "tockkernel:creds:"), nil
}

// faultLogger is the board's ProcessFault hook: it logs the fault and
// always declares it unrecoverable, letting set_fault_state()'s restart
// policy decide the process's fate.
type faultLogger struct{ log *zap.Logger }

func (f faultLogger) HandleFault(p *process.Process) error {
	f.log.Warn("process fault", zap.String("name", p.Name()))
	return fmt.Errorf("process %s: unrecovered fault", p.Name())
}

// loadDemoProcesses materializes two example processes exercising the
// alarm and console capsules, and admits them into the process table.
// A real board would load these from a flash image; this simulator loads
// them directly from Go closures instead.
func loadDemoProcesses(k *kernel.Kernel, alarmCap *alarm.Capsule) []process.ID {
	layout := process.Layout{
		Flash:        process.MemRange{Start: 0x10000, End: 0x20000},
		IntegrityEnd: 0x1F000,
		AccessibleRW: process.MemRange{Start: 0x20000, End: 0x21000},
		AccessibleRO: process.MemRange{Start: 0x20000, End: 0x21000},
		Executable:   process.MemRange{Start: 0x10000, End: 0x1F000},
	}

	var pids []process.ID
	admit := func(name string, prog simchip.Program) {
		gen := k.CreateProcessIdentifier()
		p := process.New(name, layout, gen, process.RestartAlways)
		p.SetFooterBytes(nil) // no TBF footers: PastLastFooter on first parse
		rt := simchip.NewRuntime(prog)
		p.SetRuntime(rt)

		idx := len(pids)
		k.SetProcess(idx, p)
		pid := process.ID{Index: idx, Gen: gen}
		pids = append(pids, pid)
		alarmCap.RegisterProcess(pid, p)
	}

	admit("blink", blinkProgram())
	admit("echo", echoProgram())
	return pids
}

// blinkProgram subscribes to the alarm's fired upcall, arms a repeating
// one-shot, and yields between firings — the simulated-userspace analogue
// of a Tock blink app's event loop.
func blinkProgram() simchip.Program {
	return func(u *simchip.UserContext) {
		u.NextCallback() // consume the kernel-synthesized init callback

		u.Syscall(uintptr(syscallapi.ClassSubscribe), uintptr(driverAlarm), uintptr(alarm.UpcallFired), 0x10010, 0)
		u.Syscall(uintptr(syscallapi.ClassCommand), uintptr(driverAlarm), uintptr(alarm.CmdSetAlarm), 200_000, 0)

		for {
			u.Syscall(uintptr(syscallapi.ClassYield), uintptr(syscallapi.YieldWait), 0x20000, 0)
			u.NextCallback() // the fired upcall's installed entry point
			u.Syscall(uintptr(syscallapi.ClassCommand), uintptr(driverAlarm), uintptr(alarm.CmdSetAlarm), 200_000, 0)
		}
	}
}

// echoProgram seeds a read-only buffer, Allows it to the console driver,
// and periodically asks the console to write it — the simulated-userspace
// analogue of a Tock console-writer app.
func echoProgram() simchip.Program {
	msg := []byte("tockkernel: alive\n")
	return func(u *simchip.UserContext) {
		u.NextCallback()

		u.WriteBytes(0x20100, msg)
		u.Syscall(uintptr(syscallapi.ClassSubscribe), uintptr(driverConsole), uintptr(console.UpcallWriteDone), 0x10020, 0)
		u.Syscall(uintptr(syscallapi.ClassReadOnlyAllow), uintptr(driverConsole), uintptr(console.AllowWriteBuffer), 0x20100, uintptr(len(msg)))

		for {
			u.Syscall(uintptr(syscallapi.ClassCommand), uintptr(driverConsole), uintptr(console.CmdWrite), uintptr(len(msg)), 0)
			u.Syscall(uintptr(syscallapi.ClassYield), uintptr(syscallapi.YieldWait), 0x20000, 0)
			u.NextCallback()
		}
	}
}

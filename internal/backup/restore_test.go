package backup_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/worldkeeper/worldkeeper/internal/backup"
	"github.com/worldkeeper/worldkeeper/internal/config"
	"github.com/worldkeeper/worldkeeper/internal/event"
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/scheduler"
	"github.com/worldkeeper/worldkeeper/internal/storage"
	"github.com/worldkeeper/worldkeeper/internal/world"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

// snapshot maps every file below dir to its content.
func snapshot(dir string) map[string]string {
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	Expect(err).NotTo(HaveOccurred())
	return files
}

var _ = Describe("Backups of one world", func() {
	var (
		ctx      context.Context
		sched    *scheduler.Scheduler
		server   *host.Server
		manager  *world.Manager
		service  *backup.Service
		alpha    *world.World
		player   *host.Player
		clockMu  sync.Mutex
		now      time.Time
		epoch    = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		setClock = func(d time.Duration) {
			clockMu.Lock()
			defer clockMu.Unlock()
			now = epoch.Add(d)
		}
	)

	onMain := func(fn func()) {
		Expect(sched.Call(ctx, fn)).To(Succeed())
	}

	backupAt := func(d time.Duration) types.Backup {
		setClock(d)
		b, err := service.CreateBackup(ctx, alpha)
		Expect(err).NotTo(HaveOccurred())
		return b
	}

	listTimes := func() []time.Time {
		backups, err := service.List(ctx, alpha)
		Expect(err).NotTo(HaveOccurred())
		var out []time.Time
		for _, b := range backups {
			out = append(out, b.CreatedAt.UTC())
		}
		return out
	}

	BeforeEach(func() {
		ctx = context.Background()
		root, err := os.MkdirTemp("", "worldkeeper-backup-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)

		sched = scheduler.New()
		runCtx, stop := context.WithCancel(ctx)
		go sched.Run(runCtx)
		DeferCleanup(func() {
			stop()
			<-sched.Done()
		})

		cfg := config.Default()
		cfg.Backup.MaxBackupsPerWorld = 2

		osFs := afero.NewOsFs()
		container := filepath.Join(root, "worlds")
		server = host.NewServer(host.Config{
			Container:   container,
			Templates:   filepath.Join(root, "templates"),
			DataVersion: config.DefaultDataVersion,
			Fs:          osFs,
		}, sched)
		bus := event.NewBus()
		DeferCleanup(bus.Close)
		store := storage.New(filepath.Join(root, "storage"))
		registry := world.NewRegistry(store, osFs, container)

		manager, err = world.NewManager(world.Options{
			Server:    server,
			Scheduler: sched,
			Bus:       bus,
			Registry:  registry,
			Spawn:     world.NewSpawn(store, server, nil),
			Config:    cfg,
		})
		Expect(err).NotTo(HaveOccurred())

		setClock(0)
		local := backup.NewLocalStorage(osFs, filepath.Join(root, "backups"), backup.WithClock(func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			return now
		}))
		service = backup.NewService(manager, local, cfg.Backup)
		DeferCleanup(service.Stop)

		_, err = manager.Create(ctx, "hub", world.Data{Type: types.WorldNormal})
		Expect(err).NotTo(HaveOccurred())
		alpha, err = manager.Create(ctx, "alpha", world.Data{Type: types.WorldNormal})
		Expect(err).NotTo(HaveOccurred())

		player = server.Join("alex")
		moved := make(chan bool, 1)
		server.Teleport(player, types.Location{World: "alpha", X: 0.5, Y: 65, Z: 0.5}, func(ok bool) { moved <- ok })
		Eventually(moved).Should(Receive(BeTrue()))
	})

	It("keeps only the newest backups up to the cap", func() {
		backupAt(0)
		backupAt(10 * time.Second)
		backupAt(20 * time.Second)

		Expect(listTimes()).To(Equal([]time.Time{
			epoch.Add(10 * time.Second),
			epoch.Add(20 * time.Second),
		}))
	})

	It("does not create or delete backups when restoring", func() {
		backupAt(0)
		middle := backupAt(10 * time.Second)
		backupAt(20 * time.Second)

		Expect(service.Restore(ctx, alpha, middle.ID, player)).To(Succeed())
		Expect(listTimes()).To(Equal([]time.Time{
			epoch.Add(10 * time.Second),
			epoch.Add(20 * time.Second),
		}))
	})

	It("restores the directory exactly and brings occupants back", func() {
		marker := types.BlockPos{X: 20, Y: 70, Z: -20}
		dir := manager.Registry().Dir(alpha)

		onMain(func() {
			Expect(server.Level("alpha").SetBlock(marker, types.Glass)).To(Succeed())
		})
		first := backupAt(0)
		before := snapshot(dir)

		onMain(func() {
			Expect(server.Level("alpha").SetBlock(marker, types.Stone)).To(Succeed())
			Expect(server.Level("alpha").SetBlock(types.BlockPos{X: 300, Y: 70, Z: 300}, types.Glass)).To(Succeed())
		})
		backupAt(10 * time.Second)
		Expect(snapshot(dir)).NotTo(Equal(before))

		Expect(service.Restore(ctx, alpha, first.ID, player)).To(Succeed())
		Expect(snapshot(dir)).To(Equal(before))

		Eventually(player.World).WithTimeout(5 * time.Second).Should(Equal("alpha"))
		onMain(func() {
			lvl := server.Level("alpha")
			Expect(lvl).NotTo(BeNil())
			Expect(lvl.BlockAt(marker)).To(Equal(types.Glass))
			Expect(world.IsSafeLocation(lvl, player.Location().Block())).To(BeTrue())
		})
		Expect(alpha.Loaded()).To(BeTrue())
	})

	It("refuses to restore into an unloaded world", func() {
		b := backupAt(0)
		onMain(func() {
			Expect(manager.Unloader().ForceUnload(alpha, true)).To(Succeed())
		})
		Expect(service.Restore(ctx, alpha, b.ID, nil)).To(MatchError(backup.ErrNoTarget))
	})

	It("reports unknown backups", func() {
		Expect(service.Restore(ctx, alpha, "01HZZZZZZZZZZZZZZZZZZZZZZZ", nil)).To(MatchError(backup.ErrNotFound))
	})
})

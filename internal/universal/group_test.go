package universal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/cache"
	"github.com/cruciblehq/kiln/internal/env"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var groupSteps = []recipe.Step{recipe.StepFetch, recipe.StepExtract, recipe.StepConfigure, recipe.StepCompile, recipe.StepInstall}

// Records the steps run per architecture.
type stepLog struct {
	mu  sync.Mutex
	ran []string
}

func (l *stepLog) add(arch string, step recipe.Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ran = append(l.ran, fmt.Sprintf("%s/%s", arch, step))
}

func (l *stepLog) entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ran...)
}

func newInstance(t *testing.T, log *stepLog, arch string, kind recipe.SourceKind) *recipe.Recipe {
	t.Helper()
	dir := filepath.Join(t.TempDir(), arch)
	r := &recipe.Recipe{
		Name:     "libfoo",
		Version:  "1.0",
		Steps:    groupSteps,
		BuildDir: filepath.Join(dir, "build"),
		Prefix:   filepath.Join(dir, "prefix"),
		LogDir:   filepath.Join(dir, "logs"),
		Platform: platforms.MustParse("ios/" + arch),
		Source:   recipe.Source{Kind: kind},
		Env:      env.New(nil),
		Actions:  make(map[recipe.Step]recipe.Action),
	}
	for _, s := range groupSteps {
		r.Actions[s] = func(ctx context.Context, x *recipe.Exec) error {
			log.add(x.Recipe.Arch(), x.Step)
			return nil
		}
	}
	return r
}

func TestNewGroupValidation(t *testing.T) {
	log := &stepLog{}
	arm := newInstance(t, log, "arm64", recipe.SourceTarball)
	x86 := newInstance(t, log, "amd64", recipe.SourceTarball)

	_, err := NewGroup(nil, GroupOptions{})
	assert.True(t, errdefs.IsInvalidArgument(err))

	dup := newInstance(t, log, "arm64", recipe.SourceTarball)
	_, err = NewGroup([]*recipe.Recipe{arm, dup}, GroupOptions{})
	assert.ErrorIs(t, err, ErrInvalidGroup)

	other := newInstance(t, log, "amd64", recipe.SourceTarball)
	other.Name = "libbar"
	_, err = NewGroup([]*recipe.Recipe{arm, other}, GroupOptions{})
	assert.ErrorIs(t, err, ErrInvalidGroup)

	deps := newInstance(t, log, "amd64", recipe.SourceTarball)
	deps.Deps = []string{"openssl"}
	_, err = NewGroup([]*recipe.Recipe{arm, deps}, GroupOptions{})
	assert.ErrorIs(t, err, ErrInvalidGroup)

	platformDeps := newInstance(t, log, "amd64", recipe.SourceTarball)
	platformDeps.PlatformDeps = map[string][]string{"ios": {"libiconv"}}
	_, err = NewGroup([]*recipe.Recipe{arm, platformDeps}, GroupOptions{})
	assert.ErrorIs(t, err, ErrInvalidGroup)

	_, err = NewGroup([]*recipe.Recipe{arm, x86}, GroupOptions{Flat: true})
	assert.ErrorIs(t, err, ErrInvalidGroup)

	g, err := NewGroup([]*recipe.Recipe{arm, x86}, GroupOptions{})
	require.NoError(t, err)
	assert.Equal(t, groupSteps, g.Steps())
	assert.Equal(t, []string{"arm64", "amd64"}, g.Archs())
	assert.Same(t, x86, g.Instance("amd64"))
	assert.Same(t, arm, g.Instance("riscv64"))
	assert.Len(t, g.BuildDirs(), 2)
}

func TestGroupStepDistribution(t *testing.T) {
	log := &stepLog{}
	arm := newInstance(t, log, "arm64", recipe.SourceGit)
	x86 := newInstance(t, log, "amd64", recipe.SourceGit)
	g, err := NewGroup([]*recipe.Recipe{arm, x86}, GroupOptions{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, g.RunStep(ctx, recipe.StepFetch))
	require.NoError(t, g.RunStep(ctx, recipe.StepExtract))
	require.NoError(t, g.RunStep(ctx, recipe.StepCompile))

	// Fetch runs once; non-tarball extraction and compilation run in order.
	assert.Equal(t, []string{
		"arm64/fetch",
		"arm64/extract", "amd64/extract",
		"arm64/compile", "amd64/compile",
	}, log.entries())
}

func TestGroupSequentialStopsAtFirstFailure(t *testing.T) {
	log := &stepLog{}
	arm := newInstance(t, log, "arm64", recipe.SourceTarball)
	x86 := newInstance(t, log, "amd64", recipe.SourceTarball)
	arm.Actions[recipe.StepInstall] = func(ctx context.Context, x *recipe.Exec) error {
		return errors.New("install failed")
	}
	g, err := NewGroup([]*recipe.Recipe{arm, x86}, GroupOptions{})
	require.NoError(t, err)

	err = g.RunStep(context.Background(), recipe.StepInstall)
	var archErr *build.ArchError
	require.True(t, errors.As(err, &archErr))
	assert.Equal(t, "arm64", archErr.Arch)
	assert.Empty(t, log.entries())
}

func TestGroupFanOutBarrier(t *testing.T) {
	log := &stepLog{}
	archs := []string{"arm64", "amd64", "arm"}

	var arrived sync.WaitGroup
	arrived.Add(len(archs))
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()

	// Each instance waits for the others, so a sequential run would time out.
	rendezvous := func(fail bool) recipe.Action {
		return func(ctx context.Context, x *recipe.Exec) error {
			arrived.Done()
			select {
			case <-release:
			case <-time.After(5 * time.Second):
				return errors.New("instances did not run concurrently")
			}
			if fail {
				return errors.New("configure failed")
			}
			// Finishes well after the failing sibling returned.
			time.Sleep(50 * time.Millisecond)
			log.add(x.Recipe.Arch(), x.Step)
			return nil
		}
	}

	instances := make([]*recipe.Recipe, len(archs))
	for i, arch := range archs {
		instances[i] = newInstance(t, log, arch, recipe.SourceTarball)
		instances[i].Actions[recipe.StepConfigure] = rendezvous(arch == "amd64")
	}

	g, err := NewGroup(instances, GroupOptions{})
	require.NoError(t, err)

	err = g.RunStep(context.Background(), recipe.StepConfigure)
	require.Error(t, err)

	var archErr *build.ArchError
	require.True(t, errors.As(err, &archErr))
	assert.Equal(t, "amd64", archErr.Arch)
	assert.Equal(t, recipe.StepConfigure, archErr.Step)

	// The failure is reported only once both siblings completed.
	assert.ElementsMatch(t, []string{"arm64/configure", "arm/configure"}, log.entries())
}

func TestGroupCookWithMerge(t *testing.T) {
	log := &stepLog{}
	arm := newInstance(t, log, "arm64", recipe.SourceTarball)
	x86 := newInstance(t, log, "amd64", recipe.SourceTarball)

	for _, r := range []*recipe.Recipe{arm, x86} {
		r.Actions[recipe.StepInstall] = func(ctx context.Context, x *recipe.Exec) error {
			writeTree(t, x.Recipe.Prefix, map[string]string{
				"lib/pkgconfig/foo.pc": "prefix=" + x.Recipe.Prefix + "\n",
			})
			return nil
		}
	}

	out := filepath.Join(t.TempDir(), "universal")
	g, err := NewGroup([]*recipe.Recipe{arm, x86}, GroupOptions{
		Flat:   true,
		Prefix: out,
		Merger: NewMerger(newFakeToolchain(), 2),
	})
	require.NoError(t, err)
	assert.Equal(t, recipe.StepMerge, g.Steps()[len(g.Steps())-1])

	c := cache.New()
	summary, err := build.NewOven(c, build.Options{}).Cook(context.Background(), []build.Target{g})
	require.NoError(t, err)
	assert.Equal(t, []string{"libfoo"}, summary.Built)
	assert.True(t, c.StepDone(arm, recipe.StepMerge))

	pc, err := os.ReadFile(filepath.Join(out, "lib", "pkgconfig", "foo.pc"))
	require.NoError(t, err)
	assert.Equal(t, "prefix="+out+"\n", string(pc))
}

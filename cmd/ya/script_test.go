package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"

	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
)

// runMainEnv makes the test binary behave as the ya command, so scripts run
// the real command line without a separate build.
const runMainEnv = "YASYNC_TEST_RUN_MAIN"

func TestMain(m *testing.M) {
	if os.Getenv(runMainEnv) == "1" {
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestScripts(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable() error = %v", err)
	}

	engine := &script.Engine{
		Cmds:  scripttest.DefaultCmds(),
		Conds: scripttest.DefaultConds(),
	}
	engine.Cmds["ya"] = script.Program(exe, nil, 0)
	engine.Cmds["objpath"] = objPathCmd()

	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + t.TempDir(),
		runMainEnv + "=1",
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_AUTHOR_NAME=ya",
		"GIT_AUTHOR_EMAIL=ya@example.com",
		"GIT_COMMITTER_NAME=ya",
		"GIT_COMMITTER_EMAIL=ya@example.com",
	}
	scripttest.Test(t, context.Background(), engine, env, "testdata/script/*.txt")
}

// objPathCmd sets an environment variable to the cache path of an object,
// since object file names are content hashes.
func objPathCmd() script.Cmd {
	return script.Command(
		script.CmdUsage{
			Summary: "set VAR to the cache path of an object",
			Args:    "VAR kind name|0xaddr [member]",
			Detail: []string{
				"Member kinds take the parent name and then the member:",
				"an offset for struct members, a name for enum members.",
			},
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) < 3 {
				return nil, script.ErrUsage
			}
			id, k, err := objectID(args[1], args[2:])
			if err != nil {
				return nil, err
			}
			return nil, s.Setenv(args[0], snapshot.Path("cache", k, id))
		})
}

func objectID(kindName string, args []string) (ids.ID, kind.Kind, error) {
	k := kind.Parse(kindName)
	member := func() (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("%s needs a parent and a member", k)
		}
		return args[1], nil
	}
	switch k {
	case kind.Function, kind.Code, kind.Data, kind.BasicBlock:
		ea, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return 0, k, err
		}
		if k == kind.Function {
			return ids.Function(ea), k, nil
		}
		return ids.EA(ea), k, nil
	case kind.Struct:
		return ids.Struc(args[0]), k, nil
	case kind.Enum:
		return ids.Enum(args[0]), k, nil
	case kind.StructMember:
		m, err := member()
		if err != nil {
			return 0, k, err
		}
		off, err := strconv.ParseInt(m, 0, 64)
		if err != nil {
			return 0, k, err
		}
		return ids.Member(ids.Struc(args[0]), off), k, nil
	case kind.EnumMember:
		m, err := member()
		if err != nil {
			return 0, k, err
		}
		return ids.EnumMember(ids.Enum(args[0]), m), k, nil
	}
	return 0, k, fmt.Errorf("unsupported kind %q", kindName)
}

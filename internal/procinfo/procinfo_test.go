package procinfo

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescribe_Self(t *testing.T) {
	info, err := Describe(int32(os.Getpid()))
	require.NoError(t, err)
	require.Equal(t, int32(os.Getpid()), info.PID)
	require.Equal(t, int32(os.Getppid()), info.PPID)
	require.NotEmpty(t, info.Name)
	require.False(t, info.CreateTime.IsZero())
	require.Contains(t, info.String(), "(")
}

func TestInfo_StringFallbacks(t *testing.T) {
	require.Equal(t, "7", (&Info{PID: 7}).String())
	require.Equal(t, "7 (sh)", (&Info{PID: 7, Name: "sh"}).String())
	require.Equal(t, "7 (sh -c true)", (&Info{PID: 7, Name: "sh", Cmdline: "sh -c true"}).String())
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  syscall.Signal
		want string
	}{
		{syscall.SIGSEGV, "SIGSEGV (Segmentation fault)"},
		{syscall.SIGKILL, "SIGKILL (Killed)"},
		{syscall.SIGUSR2, "SIGUSR2 (User defined signal 2)"},
		{syscall.Signal(63), "signal 63"},
	}
	for _, tt := range tests {
		if got := SignalName(tt.sig); got != tt.want {
			t.Errorf("SignalName(%d) = %q; want %q", int(tt.sig), got, tt.want)
		}
	}
}

package sign

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/purify/pkg/purify/tools"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

// fakeSignerScript stands in for java + uber-apk-signer. It copies the
// --apks input into the --out directory under the given suffix, so the
// probe logic sees realistic tool output.
func fakeSignerScript(t *testing.T, suffix string) *tools.Toolchain {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-signer")
	content := `#!/bin/sh
apk=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --apks) apk="$2"; shift ;;
    --out) out="$2"; shift ;;
  esac
  shift
done
stem=$(basename "$apk" .apk)
cp "$apk" "$out/$stem` + suffix + `"
`
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

	return &tools.Toolchain{Java: script, Signer: "ignored.jar"}
}

func fakeVerifyScript(t *testing.T, output string, exitCode string) *tools.Toolchain {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-verify")
	content := "#!/bin/sh\ncat <<'EOF'\n" + output + "\nEOF\nexit " + exitCode + "\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

	return &tools.Toolchain{Java: script, Signer: "ignored.jar"}
}

func writeFakeAPK(t *testing.T, path string) types.Artifact {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("not really an apk"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return types.Artifact{Path: path, Size: info.Size()}
}

func TestSign_DebugKeystore(t *testing.T) {
	tc := fakeSignerScript(t, "-aligned-debugSigned.apk")
	signer := NewSigner(tc)

	workDir := t.TempDir()
	in := writeFakeAPK(t, filepath.Join(workDir, "app.apk"))
	out := filepath.Join(workDir, "out", "app_purified.apk")

	artifact, err := signer.Sign(context.Background(), in, out, nil)
	require.NoError(t, err)

	assert.Equal(t, out, artifact.Path)
	assert.FileExists(t, out)
	// The intermediate tool-named file was moved, not copied.
	assert.NoFileExists(t, filepath.Join(workDir, "out", "app-aligned-debugSigned.apk"))
}

func TestSign_SuffixProbing(t *testing.T) {
	for _, suffix := range []string{
		"-aligned-debugSigned.apk",
		"-aligned-signed.apk",
		"-debugSigned.apk",
		"-signed.apk",
	} {
		t.Run(suffix, func(t *testing.T) {
			tc := fakeSignerScript(t, suffix)
			signer := NewSigner(tc)

			workDir := t.TempDir()
			in := writeFakeAPK(t, filepath.Join(workDir, "app.apk"))
			out := filepath.Join(workDir, "out", "result.apk")

			artifact, err := signer.Sign(context.Background(), in, out, nil)
			require.NoError(t, err)
			assert.FileExists(t, artifact.Path)
		})
	}
}

func TestSign_UnknownSuffixFallsBackToAnyAPK(t *testing.T) {
	tc := fakeSignerScript(t, ".futureSigned.apk")
	signer := NewSigner(tc)

	workDir := t.TempDir()
	in := writeFakeAPK(t, filepath.Join(workDir, "app.apk"))
	out := filepath.Join(workDir, "out", "result.apk")

	artifact, err := signer.Sign(context.Background(), in, out, nil)
	require.NoError(t, err)
	assert.FileExists(t, artifact.Path)
}

func TestSign_ToolFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "failing-signer")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'keystore unreadable' >&2\nexit 1\n"), 0o755))
	signer := NewSigner(&tools.Toolchain{Java: script, Signer: "ignored.jar"})

	workDir := t.TempDir()
	in := writeFakeAPK(t, filepath.Join(workDir, "app.apk"))

	_, err := signer.Sign(context.Background(), in, filepath.Join(workDir, "out", "result.apk"), nil)
	require.Error(t, err)

	var signErr *Error
	require.ErrorAs(t, err, &signErr)
	assert.Contains(t, signErr.Stderr, "keystore unreadable")
}

func TestVerify_Signed(t *testing.T) {
	tc := fakeVerifyScript(t, "v1 signature: true\nv2 signature: true\nv3 signature: false", "0")
	signer := NewSigner(tc)

	v, err := signer.Verify(context.Background(), "/tmp/app.apk")
	require.NoError(t, err)

	assert.True(t, v.Signed)
	assert.Equal(t, []string{"v1", "v2", "v3"}, v.Schemes)
}

func TestVerify_UnsignedIsNotAnError(t *testing.T) {
	tc := fakeVerifyScript(t, "no signature found", "1")
	signer := NewSigner(tc)

	v, err := signer.Verify(context.Background(), "/tmp/app.apk")
	require.NoError(t, err)

	assert.False(t, v.Signed)
	assert.Empty(t, v.Schemes)
}

func TestIsSigned(t *testing.T) {
	dir := t.TempDir()

	makeZip := func(name string, entries ...string) string {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		require.NoError(t, err)
		w := zip.NewWriter(f)
		for _, entry := range entries {
			ew, err := w.Create(entry)
			require.NoError(t, err)
			_, err = ew.Write([]byte("x"))
			require.NoError(t, err)
		}
		require.NoError(t, w.Close())
		require.NoError(t, f.Close())
		return path
	}

	signed := makeZip("signed.apk", "AndroidManifest.xml", "META-INF/CERT.RSA", "META-INF/CERT.SF")
	unsigned := makeZip("unsigned.apk", "AndroidManifest.xml", "classes.dex")

	got, err := IsSigned(signed)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = IsSigned(unsigned)
	require.NoError(t, err)
	assert.False(t, got)

	notZip := filepath.Join(dir, "broken.apk")
	require.NoError(t, os.WriteFile(notZip, []byte("plain text"), 0o644))
	_, err = IsSigned(notZip)
	assert.Error(t, err)
}

package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"dcmvolume/internal/models"
)

func translationAffine(x, y, z float64) models.Affine {
	a := models.IdentityAffine()
	a[0][3], a[1][3], a[2][3] = x, y, z
	return a
}

func rampVolume(n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i)
	}
	return data
}

// writeRaw writes a single-file volume with an arbitrary header and sample
// slice, bypassing WriteVolume.
func writeRaw(t *testing.T, path string, h *Header, order binary.ByteOrder, samples any) {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, order, h); err != nil {
		t.Fatal(err)
	}
	buf.Write(make([]byte, voxOffset-headerSize))
	if err := binary.Write(&buf, order, samples); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"vol.nii", "vol.nii.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			shape := []int{4, 5, 6}
			data := rampVolume(4 * 5 * 6)
			affine := translationAffine(10, 20, 30)

			if err := WriteVolume(data, shape, affine, path, "series=1.2.3"); err != nil {
				t.Fatalf("WriteVolume failed: %v", err)
			}

			img, err := ReadVolume(path, ReadOptions{Mode: ModeAll})
			if err != nil {
				t.Fatalf("ReadVolume failed: %v", err)
			}

			if len(img.Shape) != 3 || img.Shape[0] != 4 || img.Shape[1] != 5 || img.Shape[2] != 6 {
				t.Fatalf("Shape = %v, want [4 5 6]", img.Shape)
			}
			for i := range data {
				if img.Data[i] != data[i] {
					t.Fatalf("Voxel %d = %v, want %v", i, img.Data[i], data[i])
				}
			}
			if !img.Affine.EqualApprox(affine, 1e-6) {
				t.Errorf("Affine = %v, want %v", img.Affine, affine)
			}
			if img.DType != "float32" {
				t.Errorf("DType = %q, want float32", img.DType)
			}
			if img.Header.SFormCode != XformScanner {
				t.Errorf("sform_code = %d, want scanner", img.Header.SFormCode)
			}
			if img.Header.CalMin != 0 || img.Header.CalMax != 119 {
				t.Errorf("Calibration = [%g, %g], want [0, 119]", img.Header.CalMin, img.Header.CalMax)
			}
			// On disk the fastest axis is the last memory axis.
			if dims := img.Header.Dims(); dims[0] != 6 || dims[1] != 5 || dims[2] != 4 {
				t.Errorf("Disk dims = %v, want [6 5 4]", dims)
			}
		})
	}
}

func TestRoundTrip4D(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dyn.nii")
	shape := []int{3, 2, 3, 4}
	data := rampVolume(3 * 2 * 3 * 4)

	if err := WriteVolume(data, shape, models.IdentityAffine(), path, ""); err != nil {
		t.Fatalf("WriteVolume failed: %v", err)
	}
	img, err := ReadVolume(path, ReadOptions{})
	if err != nil {
		t.Fatalf("ReadVolume failed: %v", err)
	}
	if len(img.Shape) != 4 || img.Shape[0] != 3 || img.Shape[3] != 4 {
		t.Fatalf("Shape = %v, want [3 2 3 4]", img.Shape)
	}
	for i := range data {
		if img.Data[i] != data[i] {
			t.Fatalf("Voxel %d = %v, want %v", i, img.Data[i], data[i])
		}
	}
}

// TestAxisConvention checks the memory layout against voxels placed at known
// on-disk positions.
func TestAxisConvention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axes.nii")
	nx, ny, nz := 2, 3, 4
	h := newHeader([]int{nx, ny, nz}, models.IdentityAffine())

	disk := make([]float32, 0, nx*ny*nz)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				disk = append(disk, float32(i+10*j+100*k))
			}
		}
	}
	writeRaw(t, path, h, binary.LittleEndian, disk)

	img, err := ReadVolume(path, ReadOptions{})
	if err != nil {
		t.Fatalf("ReadVolume failed: %v", err)
	}
	if img.Shape[0] != nz || img.Shape[1] != ny || img.Shape[2] != nx {
		t.Fatalf("Shape = %v, want [%d %d %d]", img.Shape, nz, ny, nx)
	}

	for a := 0; a < nz; a++ {
		for b := 0; b < ny; b++ {
			for c := 0; c < nx; c++ {
				want := float32(c + 10*(ny-1-b) + 100*(nz-1-a))
				if got := img.Data[(a*ny+b)*nx+c]; got != want {
					t.Errorf("mem[%d][%d][%d] = %v, want %v", a, b, c, got, want)
				}
			}
		}
	}
}

func TestReadScaledBigEndian(t *testing.T) {
	path := filepath.Join(t.TempDir(), "be.nii")
	h := newHeader([]int{2, 2, 2}, models.IdentityAffine())
	h.DataType = DTInt16
	h.BitPix = 16
	h.SclSlope = 2
	h.SclInter = 1
	writeRaw(t, path, h, binary.BigEndian, []int16{0, 1, 2, 3, 4, 5, 6, -7})

	img, err := ReadVolume(path, ReadOptions{Mode: ModeAll})
	if err != nil {
		t.Fatalf("ReadVolume failed: %v", err)
	}
	if img.DType != "int16" {
		t.Errorf("DType = %q, want int16", img.DType)
	}
	// Disk voxel (0,0,0) lands at mem[1][1][0]; disk voxel (1,1,1) at mem[0][0][1].
	if got := img.Data[(1*2+1)*2+0]; got != 1 {
		t.Errorf("Scaled first voxel = %v, want 1", got)
	}
	if got := img.Data[1]; got != -13 {
		t.Errorf("Scaled last voxel = %v, want -13", got)
	}
}

func TestReadNaNReplacement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nan.nii")
	data := []float32{1, float32(math.NaN()), 3, 4, 5, 6, 7, 8}
	if err := WriteVolume(data, []int{2, 2, 2}, models.IdentityAffine(), path, ""); err != nil {
		t.Fatalf("WriteVolume failed: %v", err)
	}

	img, err := ReadVolume(path, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(float64(img.Data[1])) {
		t.Errorf("NaN should be kept without a replacement, got %v", img.Data[1])
	}

	zero := 0.0
	img, err = ReadVolume(path, ReadOptions{NaNReplacement: &zero})
	if err != nil {
		t.Fatal(err)
	}
	if img.Data[1] != 0 {
		t.Errorf("NaN replacement = %v, want 0", img.Data[1])
	}
}

func TestReadAffineOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aff.nii")
	affine := translationAffine(-5, 0, 2.5)
	affine[0][0] = 2
	if err := WriteVolume(rampVolume(8), []int{2, 2, 2}, affine, path, ""); err != nil {
		t.Fatal(err)
	}

	img, err := ReadVolume(path, ReadOptions{Mode: ModeAffine})
	if err != nil {
		t.Fatalf("ReadVolume failed: %v", err)
	}
	if img.Data != nil || img.Header != nil {
		t.Error("Affine mode should not return data or header")
	}
	if !img.Affine.EqualApprox(affine, 1e-6) {
		t.Errorf("Affine = %v, want %v", img.Affine, affine)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if h.PixDim[1] != 2 || h.PixDim[2] != 1 || h.PixDim[3] != 1 {
		t.Errorf("PixDim = %v, want voxel sizes (2, 1, 1)", h.PixDim[1:4])
	}
}

func TestUnsupportedDims(t *testing.T) {
	dir := t.TempDir()

	err := WriteVolume(rampVolume(6), []int{2, 3}, models.IdentityAffine(), filepath.Join(dir, "flat.nii"), "")
	if !errors.Is(err, models.ErrUnsupportedDims) {
		t.Errorf("Expected ErrUnsupportedDims on write, got %v", err)
	}

	path := filepath.Join(dir, "flat2d.nii")
	writeRaw(t, path, newHeader([]int{2, 3}, models.IdentityAffine()), binary.LittleEndian, rampVolume(6))
	_, err = ReadVolume(path, ReadOptions{})
	if !errors.Is(err, models.ErrUnsupportedDims) {
		t.Errorf("Expected ErrUnsupportedDims on read, got %v", err)
	}
}

func TestWriteValidation(t *testing.T) {
	dir := t.TempDir()
	long := make([]byte, 81)
	for i := range long {
		long[i] = 'x'
	}

	err := WriteVolume(rampVolume(8), []int{2, 2, 2}, models.IdentityAffine(), filepath.Join(dir, "a.nii"), string(long))
	if !errors.Is(err, models.ErrInvalidMetadata) {
		t.Errorf("Expected ErrInvalidMetadata for a long description, got %v", err)
	}

	err = WriteVolume(rampVolume(7), []int{2, 2, 2}, models.IdentityAffine(), filepath.Join(dir, "b.nii"), "")
	if !errors.Is(err, models.ErrInvalidMetadata) {
		t.Errorf("Expected ErrInvalidMetadata for a short buffer, got %v", err)
	}
}

func TestReadUnreadable(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadVolume(filepath.Join(dir, "missing.nii"), ReadOptions{})
	if !models.IsIO(err) {
		t.Errorf("Missing file should be an I/O error, got %v", err)
	}

	garbage := filepath.Join(dir, "garbage.nii")
	if err := os.WriteFile(garbage, bytes.Repeat([]byte{0xAB}, 400), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadVolume(garbage, ReadOptions{}); !errors.Is(err, models.ErrUnreadableVolume) {
		t.Errorf("Expected ErrUnreadableVolume, got %v", err)
	}

	truncated := filepath.Join(dir, "truncated.nii")
	if err := WriteVolume(rampVolume(8), []int{2, 2, 2}, models.IdentityAffine(), truncated, ""); err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(truncated, voxOffset+4); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadVolume(truncated, ReadOptions{}); !errors.Is(err, models.ErrUnreadableVolume) {
		t.Errorf("Expected ErrUnreadableVolume for truncated data, got %v", err)
	}

	// Header dims far beyond the bytes present must fail, not allocate.
	oversized := filepath.Join(dir, "oversized.nii")
	h := newHeader([]int{32767, 32767, 32767, 32767}, models.IdentityAffine())
	writeRaw(t, oversized, h, binary.LittleEndian, make([]float32, 17))
	oversizedGz, err := Compress(oversized)
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{oversized, oversizedGz} {
		if _, err := ReadVolume(path, ReadOptions{}); !errors.Is(err, models.ErrUnreadableVolume) {
			t.Errorf("Expected ErrUnreadableVolume for %s, got %v", filepath.Base(path), err)
		}
	}
}

func TestDescription(t *testing.T) {
	tests := []struct {
		in   string
		want Description
	}{
		{"", Description{}},
		{"series=1.2.3", Description{"series": "1.2.3"}},
		{"a=1;b=2;", Description{"a": "1", "b": "2"}},
		{"flag;k=v=w", Description{"flag": "", "k": "v=w"}},
	}

	for _, tc := range tests {
		got := ParseDescription(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("ParseDescription(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for k, v := range tc.want {
			if got[k] != v {
				t.Errorf("ParseDescription(%q)[%q] = %q, want %q", tc.in, k, got[k], v)
			}
		}
	}

	d := Description{"time": "2026-1-2 3:4", "series": "1.2"}
	if s := d.String(); s != "series=1.2;time=2026-1-2 3:4" {
		t.Errorf("String() = %q", s)
	}

	path := filepath.Join(t.TempDir(), "d.nii")
	if err := WriteVolume(rampVolume(8), []int{2, 2, 2}, models.IdentityAffine(), path, d.String()); err != nil {
		t.Fatal(err)
	}
	got, err := ReadDescription(path)
	if err != nil {
		t.Fatalf("ReadDescription failed: %v", err)
	}
	if got["series"] != "1.2" || got["time"] != "2026-1-2 3:4" {
		t.Errorf("ReadDescription = %v", got)
	}
}

func TestCompressDecompress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vol.nii")
	if err := WriteVolume(rampVolume(27), []int{3, 3, 3}, models.IdentityAffine(), path, ""); err != nil {
		t.Fatal(err)
	}
	orig, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	gz, err := Compress(path)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if gz != path+".gz" {
		t.Errorf("Compress path = %s", gz)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	plain, err := Decompress(gz)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if plain != path {
		t.Errorf("Decompress path = %s, want %s", plain, path)
	}

	restored, err := os.ReadFile(plain)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(orig, restored) {
		t.Error("Decompressed content differs from the original")
	}

	if _, err := Decompress(path); err == nil {
		t.Error("Decompress should reject paths without the .gz suffix")
	}
}

func TestOrientation(t *testing.T) {
	a := models.Affine{
		{0, 0, -2, 0},
		{1, 0, 0, 0},
		{0, 0.9, 0.1, 0},
		{0, 0, 0, 1},
	}
	got := Orientation(a)
	want := [3]string{"A-P", "L-R", "S-I"}
	if got != want {
		t.Errorf("Orientation = %v, want %v", got, want)
	}

	path := filepath.Join(t.TempDir(), "o.nii")
	if err := WriteVolume(rampVolume(8), []int{2, 2, 2}, a, path, ""); err != nil {
		t.Fatal(err)
	}
	fromFile, err := FileOrientation(path)
	if err != nil {
		t.Fatal(err)
	}
	if fromFile != want {
		t.Errorf("FileOrientation = %v, want %v", fromFile, want)
	}
}

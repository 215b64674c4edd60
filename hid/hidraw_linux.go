package hid

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/khadas/scriptbridge/core/fault"
)

// hidraw ioctl numbers, from <linux/hidraw.h>: _IOC(dir, 'H', nr, size)
// with dir bits 30-31, size bits 16-29, type bits 8-15, nr bits 0-7.
const (
	hidrawIoctlType = 'H'
	iocReadWrite    = 3

	hidiocSFeatureNr = 0x06
	hidiocGFeatureNr = 0x07
)

func hidioc(nr, size uintptr) uintptr {
	return iocReadWrite<<30 | size<<16 | hidrawIoctlType<<8 | nr
}

// hidrawNodeForAddress finds the /dev/hidrawN node whose HID_UNIQ matches
// the device's Bluetooth address. sysDir is /sys/class/hidraw in production.
func hidrawNodeForAddress(sysDir, addr string) (string, error) {
	entries, err := os.ReadDir(sysDir)
	if err != nil {
		return "", fmt.Errorf("enumerate %s: %w: %v", sysDir, fault.ErrResourceUnavailable, err)
	}
	for _, e := range entries {
		uevent := filepath.Join(sysDir, e.Name(), "device", "uevent")
		uniq, err := hidUniqFromUevent(uevent)
		if err != nil {
			continue
		}
		if strings.EqualFold(uniq, addr) {
			return "/dev/" + e.Name(), nil
		}
	}
	return "", fmt.Errorf("no hidraw node for %s: %w", addr, fault.ErrNotFound)
}

func hidUniqFromUevent(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if uniq, ok := strings.CutPrefix(scanner.Text(), "HID_UNIQ="); ok {
			return uniq, nil
		}
	}
	return "", scanner.Err()
}

func hidrawIoctl(path string, req uintptr, buf []byte) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w: %v", path, fault.ErrResourceUnavailable, err)
	}
	defer unix.Close(fd)

	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return 0, fmt.Errorf("ioctl %s: %w: %v", path, fault.ErrPlatformRejected, errno)
	}
	return int(n), nil
}

// hidrawSetFeature sends a feature report. The report id is the first byte
// of the payload, per the hidraw contract.
func hidrawSetFeature(path string, report []byte) error {
	if len(report) == 0 {
		return fmt.Errorf("empty feature report: %w", fault.ErrEncoding)
	}
	buf := append([]byte(nil), report...)
	_, err := hidrawIoctl(path, hidioc(hidiocSFeatureNr, uintptr(len(buf))), buf)
	return err
}

func hidrawGetFeature(path string, reportID byte, bufSize int) ([]byte, error) {
	buf := make([]byte, bufSize)
	buf[0] = reportID
	n, err := hidrawIoctl(path, hidioc(hidiocGFeatureNr, uintptr(len(buf))), buf)
	if err != nil {
		return nil, err
	}
	if n > len(buf) {
		n = len(buf)
	}
	return buf[:n], nil
}

// hidrawWrite sends an output report on the interrupt channel.
func hidrawWrite(path string, data []byte) error {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w: %v", path, fault.ErrResourceUnavailable, err)
	}
	defer unix.Close(fd)

	if _, err := unix.Write(fd, data); err != nil {
		return fmt.Errorf("write %s: %w: %v", path, fault.ErrPlatformRejected, err)
	}
	return nil
}

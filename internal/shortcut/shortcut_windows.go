//go:build windows

package shortcut

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// sFalse is returned by CoInitializeEx when the thread is already
// initialised.
const sFalse = 0x00000001

// Read loads the shortcut at path.
func Read(path string) (*Shortcut, error) {
	var s Shortcut
	err := withLink(path, func(link *ole.IDispatch) error {
		var err error
		if s.TargetPath, err = stringProperty(link, "TargetPath"); err != nil {
			return err
		}
		s.Arguments, _ = stringProperty(link, "Arguments")
		s.WorkingDirectory, _ = stringProperty(link, "WorkingDirectory")
		s.Description, _ = stringProperty(link, "Description")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read shortcut %s: %w", path, err)
	}
	return &s, nil
}

// Write creates or replaces the shortcut at path.
func Write(path string, s Shortcut) error {
	err := withLink(path, func(link *ole.IDispatch) error {
		for _, p := range []struct{ name, value string }{
			{"TargetPath", s.TargetPath},
			{"Arguments", s.Arguments},
			{"WorkingDirectory", s.WorkingDirectory},
			{"Description", s.Description},
		} {
			if p.value == "" {
				continue
			}
			if _, err := oleutil.PutProperty(link, p.name, p.value); err != nil {
				return fmt.Errorf("set %s: %w", p.name, err)
			}
		}
		if _, err := oleutil.CallMethod(link, "Save"); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write shortcut %s: %w", path, err)
	}
	return nil
}

// withLink runs action against WScript.Shell.CreateShortcut(path) on a
// locked, COM-initialised thread.
func withLink(path string, action func(link *ole.IDispatch) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != sFalse {
			return fmt.Errorf("initialize COM: %w", err)
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return fmt.Errorf("create WScript.Shell: %w", err)
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("query WScript.Shell: %w", err)
	}
	defer shell.Release()

	linkVar, err := oleutil.CallMethod(shell, "CreateShortcut", path)
	if err != nil {
		return err
	}
	defer linkVar.Clear()
	link := linkVar.ToIDispatch()
	if link == nil {
		return errors.New("CreateShortcut returned no object")
	}
	return action(link)
}

func stringProperty(obj *ole.IDispatch, name string) (string, error) {
	v, err := oleutil.GetProperty(obj, name)
	if err != nil {
		return "", err
	}
	defer v.Clear()
	return v.ToString(), nil
}

package bluez

import "testing"

func TestDeviceObjectPath(t *testing.T) {
	got := deviceObjectPath("A0:14:3D:A2:11:0F")
	want := "/org/bluez/hci0/dev_A0_14_3D_A2_11_0F"
	if string(got) != want {
		t.Errorf("deviceObjectPath = %q, want %q", got, want)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package command

import (
	"testing"

	"github.com/mithaystack/afectl/pkg/ism330"
	"github.com/mithaystack/afectl/pkg/maxio"
	"github.com/mithaystack/afectl/pkg/nmea"
	"github.com/mithaystack/afectl/pkg/rm3100"
	"github.com/mithaystack/afectl/pkg/spibus"
	"github.com/mithaystack/afectl/pkg/telemetry"
	"github.com/mithaystack/afectl/pkg/timesync"
)

type testRig struct {
	router  *Router
	magSim  *spibus.Sim
	imuSim  *spibus.Sim
	miscRec *spibus.Recorder
	txRec   *spibus.Recorder
	rxRec   *spibus.Recorder
}

func newRig() *testRig {
	rig := &testRig{
		magSim:  spibus.NewSim(),
		imuSim:  spibus.NewSim(),
		miscRec: &spibus.Recorder{},
		txRec:   &spibus.Recorder{},
		rxRec:   &spibus.Recorder{},
	}
	rig.router = &Router{
		Time:  timesync.New(&timesync.OffsetClock{}),
		Rates: telemetry.NewScheduler(),
		Mag:   rm3100.New(rig.magSim),
		IMU:   ism330.New(rig.imuSim),
		Bank:  maxio.NewBank(rig.miscRec, rig.txRec, rig.rxRec),
	}
	return rig
}

// send builds the command sentence from its body, routes it, and returns
// the validated response body.
func send(t *testing.T, r *Router, cmdBody string) string {
	t.Helper()
	resp, handled := r.Handle(nmea.Build(cmdBody))
	if !handled {
		t.Fatalf("command %q not handled", cmdBody)
	}
	body, err := nmea.Validate(resp)
	if err != nil {
		t.Fatalf("response %q does not validate: %v", resp, err)
	}
	return body
}

func TestTimeQuery(t *testing.T) {
	r := newRig().router
	got := send(t, r, "PMITTP?")
	if got != "PMITSR,0,TP?,1,2" {
		t.Errorf("response = %q", got)
	}
}

func TestTimeSetImmediate(t *testing.T) {
	r := newRig().router

	got := send(t, r, "PMITTEI,1738761458")
	if got != "PMITSR,0,TEI,1738761458" {
		t.Errorf("response = %q", got)
	}
	if r.Time.Armed() {
		t.Error("NMEA acquisition still armed after TEI")
	}

	got = send(t, r, "PMITTP?")
	if got != "PMITSR,0,TP?,2,3" {
		t.Errorf("query after TEI = %q", got)
	}
}

func TestTimeSetPPS(t *testing.T) {
	r := newRig().router

	if got := send(t, r, "PMITTEP,1738761458"); got != "PMITSR,0,TEP,1738761458" {
		t.Errorf("response = %q", got)
	}
	if got := send(t, r, "PMITTP?"); got != "PMITSR,0,TP?,2,1" {
		t.Errorf("query after TEP = %q", got)
	}
}

func TestTimeSourceCommands(t *testing.T) {
	r := newRig().router

	if got := send(t, r, "PMITTSE"); got != "PMITSR,0,TSE,0" {
		t.Errorf("TSE = %q", got)
	}
	if got := send(t, r, "PMITTP?"); got != "PMITSR,0,TP?,2,0" {
		t.Errorf("query after TSE = %q", got)
	}

	if got := send(t, r, "PMITTSG"); got != "PMITSR,0,TSG,0" {
		t.Errorf("TSG = %q", got)
	}
	if !r.Time.Armed() {
		t.Error("TSG did not rearm acquisition")
	}
	if got := send(t, r, "PMITTEN"); got != "PMITSR,0,TEN,0" {
		t.Errorf("TEN = %q", got)
	}
}

func TestTimeParamErrors(t *testing.T) {
	r := newRig().router
	tests := []struct {
		body string
		want string
	}{
		{"PMITTEI", "PMITSR,-1,TEI,-11"},
		{"PMITTEI,abc", "PMITSR,-1,TEI,-12"},
		{"PMITTEI,-5", "PMITSR,-1,TEI,-13"},
		{"PMITTEP,abc", "PMITSR,-1,TEP,-12"},
		{"PMITTQZ", "PMITSR,-1,TQZ,-2"},
	}
	for _, tt := range tests {
		if got := send(t, r, tt.body); got != tt.want {
			t.Errorf("%q -> %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestTimeChecksumError(t *testing.T) {
	r := newRig().router
	resp, handled := r.Handle("$PMITTP?*00")
	if !handled {
		t.Fatal("not handled")
	}
	body, err := nmea.Validate(resp)
	if err != nil {
		t.Fatalf("response invalid: %v", err)
	}
	if body != "PMITSR,-1,XXX,-1" {
		t.Errorf("response = %q", body)
	}
}

func TestRateCommands(t *testing.T) {
	r := newRig().router

	if got := send(t, r, "PMITRT,5"); got != "PMITSR,0,RT,0" {
		t.Errorf("RT = %q", got)
	}
	if got := send(t, r, "PMITRM,10"); got != "PMITSR,0,RM,0" {
		t.Errorf("RM = %q", got)
	}
	if got := send(t, r, "PMITRI,0"); got != "PMITSR,0,RI,0" {
		t.Errorf("RI = %q", got)
	}
	if got := send(t, r, "PMITR?"); got != "PMITSR,0,R?,5,10,0" {
		t.Errorf("R? = %q", got)
	}

	if got := send(t, r, "PMITRA,2"); got != "PMITSR,0,RA,2" {
		t.Errorf("RA = %q", got)
	}
	if got := send(t, r, "PMITR?"); got != "PMITSR,0,R?,2,2,2" {
		t.Errorf("R? after RA = %q", got)
	}
}

func TestRateErrors(t *testing.T) {
	r := newRig().router
	tests := []struct {
		body string
		want string
	}{
		{"PMITRT,abc", "PMITSR,-1,RT,-1"},
		{"PMITRT", "PMITSR,-1,RT,-10"}, // no comma, so no vector match
		{"PMITRT,61", "PMITSR,-1,RT,-2"},
		{"PMITRM,-1", "PMITSR,-1,RM,-2"},
		{"PMITRZ,1", "PMITSR,-1,RZ,-10"},
	}
	for _, tt := range tests {
		if got := send(t, r, tt.body); got != tt.want {
			t.Errorf("%q -> %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestMagSetAndQuery(t *testing.T) {
	rig := newRig()
	r := rig.router

	if got := send(t, r, "PMITMGS,100,155"); got != "PMITSR,0,MGS,100,155" {
		t.Errorf("MGS = %q", got)
	}
	// cycle count 100 = 0x0064 across three axes
	if rig.magSim.Regs[0x04] != 0x00 || rig.magSim.Regs[0x05] != 0x64 {
		t.Error("cycle count did not reach the device")
	}

	if got := send(t, r, "PMITMG?"); got != "PMITSR,0,MG?,100,155" {
		t.Errorf("MG? = %q", got)
	}
}

func TestMagErrors(t *testing.T) {
	rig := newRig()
	r := rig.router
	tests := []struct {
		body string
		want string
	}{
		{"PMITMGS,200", "PMITSR,-1,MGS,-1"},
		{"PMITMGS,abc,150", "PMITSR,-1,MGS,-2"},
		{"PMITMGS,200,abc", "PMITSR,-1,MGS,-3"},
		{"PMITMGS,500,150", "PMITSR,-1,MGS,-5"},
		{"PMITMGS,200,99", "PMITSR,-1,MGS,-6"},
		{"PMITMGZ", "PMITSR,-1,MGZ,-30"},
	}
	for _, tt := range tests {
		if got := send(t, r, tt.body); got != tt.want {
			t.Errorf("%q -> %q, want %q", tt.body, got, tt.want)
		}
	}
	if len(rig.magSim.Writes) != 0 {
		t.Errorf("failed commands reached the device: %v", rig.magSim.Writes)
	}
}

func TestIMUSetAndQuery(t *testing.T) {
	r := newRig().router

	if got := send(t, r, "PMITIM?"); got != "PMITSR,0,IM?,ODR_416_HZ_HP,ODR_416_HZ_HP,1,0,0" {
		t.Errorf("IM? = %q", got)
	}

	body := "PMITIMU,ODR_104_HZ_NP,ODR_208_HZ_HP,0,1,1"
	if got := send(t, r, body); got != "PMITSR,0,IMU,ODR_104_HZ_NP,ODR_208_HZ_HP,0,1,1" {
		t.Errorf("IMU = %q", got)
	}
	if got := send(t, r, "PMITIM?"); got != "PMITSR,0,IM?,ODR_104_HZ_NP,ODR_208_HZ_HP,0,1,1" {
		t.Errorf("IM? after set = %q", got)
	}
}

func TestIMUErrors(t *testing.T) {
	r := newRig().router
	tests := []struct {
		body string
		want string
	}{
		{"PMITIMU,ODR_416_HZ_HP,ODR_416_HZ_HP,1,0", "PMITSR,-1,IMU,-1"},
		{"PMITIMU,ODR_9_HZ,ODR_416_HZ_HP,1,0,0", "PMITSR,-1,IMU,-2"},
		{"PMITIMU,ODR_416_HZ_HP,ODR_9_HZ,1,0,0", "PMITSR,-1,IMU,-3"},
		{"PMITIMU,ODR_416_HZ_HP,ODR_416_HZ_HP,2,0,0", "PMITSR,-1,IMU,-5"},
		{"PMITIMU,ODR_416_HZ_HP,ODR_416_HZ_HP,1,x,0", "PMITSR,-1,IMU,-6"},
		{"PMITIMU,ODR_416_HZ_HP,ODR_416_HZ_HP,1,0,9", "PMITSR,-1,IMU,-7"},
		// valid syntax, impossible mode: high perf plus ultra low power
		{"PMITIMU,ODR_104_HZ_NP,ODR_104_HZ_NP,1,1,0", "PMITSR,-1,IMU,-30"},
		{"PMITIMZ", "PMITSR,-1,IMZ,-30"},
	}
	for _, tt := range tests {
		if got := send(t, r, tt.body); got != tt.want {
			t.Errorf("%q -> %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestMaxMiscSetAndQuery(t *testing.T) {
	rig := newRig()
	r := rig.router

	if got := send(t, r, "PMITMAX,9,1"); got != "PMITSR,0,MAX,9,1" {
		t.Errorf("MAX = %q", got)
	}
	if len(rig.miscRec.Frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(rig.miscRec.Frames))
	}

	want := "PMITSR,0,MA?,1,1,1,1,0,0,0,1,1,1"
	if got := send(t, r, "PMITMA?"); got != want {
		t.Errorf("MA? = %q, want %q", got, want)
	}
}

func TestMaxDontCareBits(t *testing.T) {
	rig := newRig()
	r := rig.router

	if got := send(t, r, "PMITMAX,0,x,1,x"); got != "PMITSR,0,MAX,0,x,1,x" {
		t.Errorf("MAX = %q", got)
	}
	// only the one definite bit reaches the bus
	if len(rig.miscRec.Frames) != 1 {
		t.Errorf("got %d frames, want 1", len(rig.miscRec.Frames))
	}
}

func TestMaxChainTargeting(t *testing.T) {
	rig := newRig()
	r := rig.router

	if got := send(t, r, "PMITXT2,0,1"); got != "PMITSR,0,XT2,0,1" {
		t.Errorf("XT2 = %q", got)
	}
	// chip 2 of a 2-chain gets its pair clocked in first
	wantFrame := []byte{0, 1, 0x20, 0}
	if len(rig.txRec.Frames) != 1 || string(rig.txRec.Frames[0]) != string(wantFrame) {
		t.Errorf("tx frame = %v, want %v", rig.txRec.Frames, wantFrame)
	}
	if len(rig.rxRec.Frames) != 0 {
		t.Error("tx command leaked onto the rx chain")
	}

	// shadow of the touched chip changed, its sibling did not
	if got := send(t, r, "PMITXT2?"); got != "PMITSR,0,XT2,1,1,1,0,0,0,0,0,0,0" {
		t.Errorf("XT2? = %q", got)
	}
	if got := send(t, r, "PMITXT1?"); got != "PMITSR,0,XT1,0,1,1,0,0,0,0,0,0,0" {
		t.Errorf("XT1? = %q", got)
	}
}

func TestMaxRXChain(t *testing.T) {
	rig := newRig()
	r := rig.router

	if got := send(t, r, "PMITXR3,4,1,1"); got != "PMITSR,0,XR3,4,1,1" {
		t.Errorf("XR3 = %q", got)
	}
	if got := send(t, r, "PMITXR3?"); got != "PMITSR,0,XR3,0,1,1,1,1,1,0,0,0,0" {
		t.Errorf("XR3? = %q", got)
	}
	if got := send(t, r, "PMITXR4?"); got != "PMITSR,0,XR4,0,1,1,1,0,0,0,0,0,0" {
		t.Errorf("XR4? = %q", got)
	}
}

func TestMaxErrors(t *testing.T) {
	rig := newRig()
	r := rig.router
	tests := []struct {
		body string
		want string
	}{
		{"PMITMAX,0", "PMITSR,-1,MAX,-1"},
		{"PMITMAX,a,1", "PMITSR,-1,MAX,-2"},
		{"PMITMAX,10,1", "PMITSR,-1,MAX,-3"},
		{"PMITMAX,9,1,1", "PMITSR,-1,MAX,-3"}, // runs off the last port
		{"PMITMAX,0,2", "PMITSR,-1,MAX,-1"},
		{"PMITXQ9,0,1", "PMITSR,-1,XQ9,,-30"},
	}
	for _, tt := range tests {
		if got := send(t, r, tt.body); got != tt.want {
			t.Errorf("%q -> %q, want %q", tt.body, got, tt.want)
		}
	}
	if len(rig.miscRec.Frames) != 0 {
		t.Errorf("failed commands reached the bus: %v", rig.miscRec.Frames)
	}
}

func TestMaxChecksumError(t *testing.T) {
	r := newRig().router
	resp, handled := r.Handle("$PMITMAX,0,1*00")
	if !handled {
		t.Fatal("not handled")
	}
	body, err := nmea.Validate(resp)
	if err != nil {
		t.Fatalf("response invalid: %v", err)
	}
	if body != "PMITSR,-1,MX,-10" {
		t.Errorf("response = %q", body)
	}
}

func TestUnknownCommand(t *testing.T) {
	r := newRig().router
	if got := send(t, r, "PMITQQQ,1"); got != "PMITSR,-1,QQQ,-99" {
		t.Errorf("response = %q", got)
	}
}

func TestNonCommandInputIgnored(t *testing.T) {
	r := newRig().router
	if _, handled := r.Handle("$GNRMC,193409.00,A*7D"); handled {
		t.Error("GNSS sentence treated as a command")
	}
	if _, handled := r.Handle("garbage"); handled {
		t.Error("garbage treated as a command")
	}
}

// Command miditest checks MIDI ports, drum kits and Launchpads without
// starting the sequencer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	flag "github.com/juju/gnuflag"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-drum/debug"
	drum "go-drum/midi"
)

var (
	port    = flag.String("port", "", "output port for kit (default first port)")
	kitName = flag.String("kit", drum.DefaultKit, "drum kit for kit")
	channel = flag.Int("channel", 10, "MIDI channel 1-16 for kit")
	gap     = flag.Duration("gap", 250*time.Millisecond, "time between kit notes")
	verbose = flag.Bool("v", false, "log to stderr")
)

func main() {
	flag.Usage = usage
	flag.Parse(true)
	if *verbose {
		debug.EnableWriter(os.Stderr)
	}

	var err error
	switch flag.Arg(0) {
	case "list":
		err = listPorts()
	case "detect":
		err = detectLaunchpad()
	case "kit":
		err = playKit()
	case "leds":
		err = testLEDs()
	case "poll":
		pollDevices()
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "miditest: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `
Usage: miditest [OPTION]... COMMAND

Commands:
  list    list all MIDI ports
  detect  find a Launchpad
  kit     play every slot of a drum kit
  leds    sweep the Launchpad LEDs
  poll    print Launchpad connects and pad presses until interrupted
`[1:])
	flag.PrintDefaults()
	os.Exit(2)
}

// ports lists the system ports, giving up if the driver hangs.
func ports() ([]drivers.In, []drivers.Out, error) {
	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: midi.GetInPorts(), outs: midi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.ins, r.outs, nil
	case <-time.After(3 * time.Second):
		return nil, nil, fmt.Errorf("port scan timed out (on macOS: sudo killall coreaudiod midiserver)")
	}
}

func listPorts() error {
	ins, outs, err := ports()
	if err != nil {
		return err
	}
	fmt.Println("=== MIDI Input Ports ===")
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p)
	}
	return nil
}

// findLaunchpad returns the first Launchpad's ports; either may be nil.
func findLaunchpad() (drivers.In, drivers.Out, error) {
	ins, outs, err := ports()
	if err != nil {
		return nil, nil, err
	}
	var in drivers.In
	var out drivers.Out
	for _, p := range ins {
		if drum.IsLaunchpad(p.String()) {
			in = p
			break
		}
	}
	for _, p := range outs {
		if drum.IsLaunchpad(p.String()) {
			out = p
			break
		}
	}
	return in, out, nil
}

func detectLaunchpad() error {
	in, out, err := findLaunchpad()
	if err != nil {
		return err
	}
	if in != nil {
		fmt.Println("input: ", in)
	}
	if out != nil {
		fmt.Println("output:", out)
	}
	if in == nil || out == nil {
		return fmt.Errorf("launchpad not found")
	}
	fmt.Println("Launchpad detected")
	return nil
}

// playKit triggers each slot of the kit in turn through a drum bank.
func playKit() error {
	name := *port
	if name == "" {
		names := drum.OutPorts()
		if len(names) == 0 {
			return fmt.Errorf("no MIDI output ports")
		}
		name = names[0]
	}
	if *channel < 1 || *channel > 16 {
		return fmt.Errorf("channel %d outside 1-16", *channel)
	}

	b := drum.NewBank(drum.NewOutput(nil), drum.BankOptions{
		Port:    name,
		Channel: uint8(*channel - 1),
		Kit:     *kitName,
	})
	defer b.Close()

	kit := drum.GetKit(*kitName)
	fmt.Printf("%s on %s ch %d\n", kit.Name, name, *channel)
	for _, slot := range drum.Slots {
		if err := b.Preload(slot, ""); err != nil {
			return err
		}
	}
	start := time.Now()
	for i, slot := range drum.Slots {
		note, _ := b.Note(slot)
		fmt.Printf("  %-10s %d\n", slot, note)
		if err := b.Trigger(slot, start.Add(time.Duration(i)**gap)); err != nil {
			return err
		}
	}
	// let the last gate close
	time.Sleep(time.Duration(len(drum.Slots))**gap + 200*time.Millisecond)
	return nil
}

func testLEDs() error {
	in, out, err := findLaunchpad()
	if err != nil {
		return err
	}
	if out == nil {
		return fmt.Errorf("launchpad not found")
	}
	lp, err := drum.NewLaunchpadController(out.String(), in, out)
	if err != nil {
		return err
	}
	defer lp.Close()

	fmt.Println("Sweeping rows...")
	colors := [][3]uint8{{255, 0, 0}, {255, 128, 0}, {255, 255, 0}, {0, 255, 0}, {0, 255, 255}, {0, 0, 255}, {128, 0, 255}, {255, 0, 255}}
	for row := 0; row < 8; row++ {
		var batch []drum.LEDUpdate
		for col := 0; col < 8; col++ {
			batch = append(batch, drum.LEDUpdate{Row: row, Col: col, Color: colors[row]})
		}
		if err := lp.SetLEDBatch(batch); err != nil {
			return err
		}
		time.Sleep(150 * time.Millisecond)
	}

	fmt.Println("Pulsing the top row...")
	var top []drum.LEDUpdate
	for col := 0; col < 8; col++ {
		top = append(top, drum.LEDUpdate{Row: 8, Col: col, Color: [3]uint8{255, 255, 255}, Channel: drum.ChannelPulse})
	}
	if err := lp.SetLEDBatch(top); err != nil {
		return err
	}
	time.Sleep(2 * time.Second)
	return lp.ClearLEDs()
}

func pollDevices() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dm := drum.NewDeviceManager()
	go dm.Run(ctx)

	fmt.Println("Waiting for Launchpads (Ctrl+C to stop)...")
	for ev := range dm.Events() {
		fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), ev.Type, ev.ID)
		if ev.Type != drum.DeviceConnected {
			continue
		}
		go func(c drum.Controller) {
			for pad := range c.PadEvents() {
				fmt.Printf("  %s pad row=%d col=%d velocity=%d\n", c.ID(), pad.Row, pad.Col, pad.Velocity)
			}
		}(ev.Controller)
	}
}

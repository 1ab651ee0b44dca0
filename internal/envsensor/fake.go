package envsensor

// FakeDevice returns fixed raw readings.
type FakeDevice struct {
	MilliC   int32
	MilliPa  int32
	CentiPct int32
	Err      error
	Reads    int
}

func (f *FakeDevice) ReadTemperature() (int32, error) {
	f.Reads++
	return f.MilliC, f.Err
}

func (f *FakeDevice) ReadPressure() (int32, error) {
	f.Reads++
	return f.MilliPa, f.Err
}

func (f *FakeDevice) ReadHumidity() (int32, error) {
	f.Reads++
	return f.CentiPct, f.Err
}

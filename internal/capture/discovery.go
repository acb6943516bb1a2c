package capture

import "detectcam/internal/logger"

// ListAvailable probes device indices [0, maxIndex) by opening and
// immediately releasing each. Diagnostic utility only; never called during
// an active session.
func ListAvailable(maxIndex int) []int {
	return listAvailable(openGocvDevice, maxIndex)
}

func listAvailable(open openFunc, maxIndex int) []int {
	available := []int{}
	for i := 0; i < maxIndex; i++ {
		dev, err := open(i)
		if err != nil {
			logger.Debug("Capture", "Probe camera %d: %v", i, err)
			continue
		}
		if dev.IsOpened() {
			available = append(available, i)
		}
		_ = dev.Close()
	}
	return available
}

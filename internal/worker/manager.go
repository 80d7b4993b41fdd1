package worker

// Manager starts and stops the pipeline's three worker loops together.
type Manager struct {
	fileProcessor      *FileProcessor
	mediaServerUpdater *MediaServerUpdater
	retryScheduler     *RetryScheduler
}

func NewManager(fp *FileProcessor, msu *MediaServerUpdater, rs *RetryScheduler) *Manager {
	return &Manager{fileProcessor: fp, mediaServerUpdater: msu, retryScheduler: rs}
}

// Start launches all three loops as background daemon tasks.
func (m *Manager) Start() {
	m.fileProcessor.Start()
	m.mediaServerUpdater.Start()
	m.retryScheduler.Start()
}

// Stop signals every loop to finish its current row and waits for all
// three to exit before returning.
func (m *Manager) Stop() {
	m.fileProcessor.Stop()
	m.mediaServerUpdater.Stop()
	m.retryScheduler.Stop()
}

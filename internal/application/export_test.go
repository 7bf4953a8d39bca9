package application

// Wait blocks until every run started so far has finished.
func (s *SyncService) Wait() {
	s.wg.Wait()
}

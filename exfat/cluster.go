// Cluster-heap address translation and cluster reads.

package exfat

import (
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// firstClusterNumber is the number of the first cluster in the heap.
// Clusters zero and one do not exist on disk.
const firstClusterNumber = 2

// ClusterOffset translates a cluster number into its byte offset within
// the image. The cluster number must be within [2, ClusterCount+1]; the
// FAT chain traversal only ever yields numbers in that range, so an
// out-of-range number here is a caller bug and panics.
func (p Params) ClusterOffset(clusterNumber uint32) int64 {
	if clusterNumber < firstClusterNumber || uint64(clusterNumber) > uint64(p.ClusterCount)+1 {
		log.Panicf("cluster-number out of range: (%d) not in [2, %d]", clusterNumber, uint64(p.ClusterCount)+1)
	}

	sector := p.ClusterHeapOffset + uint64(clusterNumber-firstClusterNumber)*p.SectorsPerCluster

	return int64(sector * p.BytesPerSector)
}

// readCluster reads the full data of one cluster.
func readCluster(rs io.ReadSeeker, params Params, clusterNumber uint32) (data []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	offset := params.ClusterOffset(clusterNumber)

	_, err = rs.Seek(offset, io.SeekStart)
	log.PanicIf(err)

	data = make([]byte, params.ClusterSize())

	if _, err := io.ReadFull(rs, data); err != nil {
		log.Panicf("could not read cluster (%d): %s", clusterNumber, err)
	}

	return data, nil
}

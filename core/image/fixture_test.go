package image

import (
	"encoding/binary"
	"sort"
)

// Photos under test are assembled byte by byte, so fixtures can carry
// entries a camera would write but an EXIF library might not: private tags,
// unknown field types and thumbnails.

const (
	typeASCII     = 2
	typeLong      = 4
	typeRational  = 5
	typeUndefined = 7
)

const (
	tagMake             = 0x010F
	tagImageDescription = 0x010E
	tagDateTime         = 0x0132
	tagThumbOffset      = 0x0201
	tagThumbLength      = 0x0202
	tagExifPointer      = 0x8769
	tagGPSPointer       = 0x8825
	tagFNumber          = 0x829D
	tagUserComment      = 0x9286
	tagGPSMapDatum      = 0x0012
)

type dirID int

const (
	dirIFD0 dirID = iota
	dirExif
	dirGPS
	dirIFD1
	numDirs
)

type ifdEntry struct {
	id    uint16
	typ   uint16
	count uint32
	val   []byte
}

type ifd struct {
	entries []ifdEntry
}

func (d *ifd) find(id uint16) *ifdEntry {
	for i := range d.entries {
		if d.entries[i].id == id {
			return &d.entries[i]
		}
	}
	return nil
}

func (d *ifd) set(e ifdEntry) {
	if cur := d.find(e.id); cur != nil {
		*cur = e
		return
	}
	d.entries = append(d.entries, e)
}

func (d *ifd) size() uint32 {
	n := uint32(2 + 12*len(d.entries) + 4)
	for _, e := range d.entries {
		if l := uint32(len(e.val)); l > 4 {
			n += l + l%2
		}
	}
	return n
}

// exifBlock is a TIFF structure: IFD0 with its Exif and GPS sub-IFDs, plus
// IFD1 and its thumbnail.
type exifBlock struct {
	order     binary.ByteOrder
	dirs      [numDirs]*ifd
	thumbnail []byte
}

func (b *exifBlock) dir(id dirID) *ifd {
	if b.dirs[id] == nil {
		b.dirs[id] = &ifd{}
	}
	return b.dirs[id]
}

func (b *exifBlock) setASCII(dir dirID, id uint16, s string) {
	val := append([]byte(s), 0)
	b.dir(dir).set(ifdEntry{id: id, typ: typeASCII, count: uint32(len(val)), val: val})
}

func (b *exifBlock) setUndefined(dir dirID, id uint16, val []byte) {
	b.dir(dir).set(ifdEntry{id: id, typ: typeUndefined, count: uint32(len(val)), val: val})
}

func (b *exifBlock) setLong(dir dirID, id uint16, v uint32) {
	b.dir(dir).set(b.longEntry(id, v))
}

func (b *exifBlock) setRationals(dir dirID, id uint16, vals ...[2]uint32) {
	val := make([]byte, 8*len(vals))
	for i, v := range vals {
		b.order.PutUint32(val[8*i:], v[0])
		b.order.PutUint32(val[8*i+4:], v[1])
	}
	b.dir(dir).set(ifdEntry{id: id, typ: typeRational, count: uint32(len(vals)), val: val})
}

func (b *exifBlock) longEntry(id uint16, v uint32) ifdEntry {
	val := make([]byte, 4)
	b.order.PutUint32(val, v)
	return ifdEntry{id: id, typ: typeLong, count: 1, val: val}
}

// encode lays the block out as header, IFD0, Exif, GPS, IFD1, thumbnail.
func (b *exifBlock) encode() []byte {
	var dirs [numDirs]*ifd
	for i, d := range b.dirs {
		if d != nil {
			dirs[i] = &ifd{entries: append([]ifdEntry{}, d.entries...)}
		}
	}
	if dirs[dirIFD0] == nil {
		dirs[dirIFD0] = &ifd{}
	}
	if dirs[dirIFD1] == nil && b.thumbnail != nil {
		dirs[dirIFD1] = &ifd{}
	}
	if dirs[dirExif] != nil {
		dirs[dirIFD0].set(b.longEntry(tagExifPointer, 0))
	}
	if dirs[dirGPS] != nil {
		dirs[dirIFD0].set(b.longEntry(tagGPSPointer, 0))
	}
	if b.thumbnail != nil {
		dirs[dirIFD1].set(b.longEntry(tagThumbOffset, 0))
		dirs[dirIFD1].set(b.longEntry(tagThumbLength, uint32(len(b.thumbnail))))
	}

	var offsets [numDirs]uint32
	off := uint32(8)
	for i, d := range dirs {
		if d == nil {
			continue
		}
		sort.SliceStable(d.entries, func(a, c int) bool { return d.entries[a].id < d.entries[c].id })
		offsets[i] = off
		off += d.size()
	}
	thumbOff := off

	patch := func(d *ifd, id uint16, v uint32) {
		if e := d.find(id); e != nil {
			b.order.PutUint32(e.val, v)
		}
	}
	if dirs[dirExif] != nil {
		patch(dirs[dirIFD0], tagExifPointer, offsets[dirExif])
	}
	if dirs[dirGPS] != nil {
		patch(dirs[dirIFD0], tagGPSPointer, offsets[dirGPS])
	}
	if b.thumbnail != nil {
		patch(dirs[dirIFD1], tagThumbOffset, thumbOff)
	}

	out := make([]byte, int(thumbOff)+len(b.thumbnail))
	if b.order == binary.BigEndian {
		copy(out, "MM")
	} else {
		copy(out, "II")
	}
	b.order.PutUint16(out[2:], 42)
	b.order.PutUint32(out[4:], offsets[dirIFD0])
	for i, d := range dirs {
		if d == nil {
			continue
		}
		var next uint32
		if dirID(i) == dirIFD0 && dirs[dirIFD1] != nil {
			next = offsets[dirIFD1]
		}
		b.writeIFD(out, offsets[i], d, next)
	}
	copy(out[thumbOff:], b.thumbnail)
	return out
}

func (b *exifBlock) writeIFD(out []byte, off uint32, d *ifd, next uint32) {
	b.order.PutUint16(out[off:], uint16(len(d.entries)))
	dataOff := off + 2 + 12*uint32(len(d.entries)) + 4
	for i, e := range d.entries {
		p := off + 2 + 12*uint32(i)
		b.order.PutUint16(out[p:], e.id)
		b.order.PutUint16(out[p+2:], e.typ)
		b.order.PutUint32(out[p+4:], e.count)
		if len(e.val) <= 4 {
			copy(out[p+8:p+12], e.val)
			continue
		}
		b.order.PutUint32(out[p+8:], dataOff)
		copy(out[dataOff:], e.val)
		dataOff += uint32(len(e.val) + len(e.val)%2)
	}
	b.order.PutUint32(out[off+2+12*uint32(len(d.entries)):], next)
}

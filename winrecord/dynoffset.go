package winrecord

// DynOffset computes the byte offset of a record field that appears after
// numPointers pointer-sized fields, given the field's offset in a
// hypothetical 32-bit-pointer layout. This mirrors the dynamic_offset()
// helper used throughout the original ETW parser's classic MOF record
// views, where fields like unique_process_key or directory_table_base
// shift the rest of the record by 4 bytes on a 64-bit trace.
func DynOffset(staticOffset32 int, numPointers int, ptrSize int) int {
	return staticOffset32 + numPointers*(ptrSize-4)
}
